package types

import "time"

// Report summarises one probe run.
type Report struct {
	RunID     string    `json:"run_id"`
	Service   string    `json:"service"`
	Endpoint  string    `json:"endpoint"`
	StartedAt time.Time `json:"started_at"`

	// ResultCode is the run's code after the legacy remap. ExitCode is what
	// the process returned; it is 123 when ResultCode repeats LastCode.
	ResultCode int  `json:"result_code"`
	ExitCode   int  `json:"exit_code"`
	LastCode   *int `json:"last_code,omitempty"`

	// Source is one of "measured", "peer", "early-exit", "failure".
	Source      string `json:"source"`
	Reason      string `json:"reason,omitempty"`
	FailureKind string `json:"failure_kind,omitempty"`

	LifecycleSeconds float64 `json:"lifecycle_seconds"`
	RawPenalty       int     `json:"raw_penalty"`
	ServerVersion    string  `json:"server_version,omitempty"`
}

// PeerReused reports whether the result came from a concurrent probe.
func (r Report) PeerReused() bool { return r.Source == "peer" }
