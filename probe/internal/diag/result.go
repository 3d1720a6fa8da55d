package diag

import "time"

// Request describes one probe run.
type Request struct {
	// Service is the logical service the server is probed for. It names the
	// job affinity, so probes for different services do not share a slot.
	Service string
	// Address is the server endpoint as host:port.
	Address string

	// Last is the exit code the scheduler recorded for the previous run.
	Last    int
	HasLast bool

	// Previous is the value hysteresis smooths against. It equals Last
	// unless a remembered result stands in for a missing Last.
	Previous    int
	HasPrevious bool
}

// Source tells where a result came from.
type Source string

const (
	SourceMeasured  Source = "measured"   // local lifecycle run
	SourcePeer      Source = "peer"       // reused from a concurrent probe
	SourceEarlyExit Source = "early-exit" // draining, no queue class, refusing submits
	SourceFailure   Source = "failure"
)

// Result is the outcome of one run before the legacy remap and the
// "unchanged" rule are applied.
type Result struct {
	Code   int
	Reason string // alert text; empty when the run had nothing to report
	Source Source

	// Elapsed and Raw are set for measured results: lifecycle time and the
	// penalty before hysteresis.
	Elapsed time.Duration
	Raw     int

	ServerVersion string
	Failure       *Failure
}
