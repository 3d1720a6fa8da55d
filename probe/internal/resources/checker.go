package resources

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/obsidianstack/queueprobe/probe/internal/wire"
)

// Defaults for Limits.
const (
	DefaultMemoryPercent = 90.0
	DefaultFDReserve     = 50
)

// notApplicable is reported by servers that cannot read their own
// descriptor limits.
const notApplicable = "n/a"

// Limits are the thresholds a healthy server must stay within.
type Limits struct {
	// MemoryPercent fails the check when used/physical memory reaches it.
	MemoryPercent float64
	// FDReserve is the number of descriptors that must still be available
	// below the process soft limit.
	FDReserve int
}

// DefaultLimits returns 90% memory and 50 spare descriptors.
func DefaultLimits() Limits {
	return Limits{MemoryPercent: DefaultMemoryPercent, FDReserve: DefaultFDReserve}
}

// LimitError reports a breached threshold.
type LimitError struct {
	Resource string // "memory" or "fd"
	Message  string
}

func (e *LimitError) Error() string { return e.Message }

// Executor sends a single-line command. *wire.Conn satisfies it.
type Executor interface {
	Execute(ctx context.Context, cmd wire.Command) (string, error)
}

// Checker runs the static resource check over an open connection.
type Checker struct {
	exec   Executor
	limits Limits
	logger *slog.Logger
}

// NewChecker returns a Checker. A nil logger discards output.
func NewChecker(exec Executor, limits Limits, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Checker{exec: exec, limits: limits, logger: logger}
}

// Check issues HEALTH and evaluates the reply. It returns a *LimitError on a
// breach, a wire.ErrUnexpected error when the reply lacks the fields, and the
// transport error otherwise.
func (c *Checker) Check(ctx context.Context) error {
	payload, err := c.exec.Execute(ctx, wire.Health())
	if err != nil {
		return err
	}
	c.logger.Debug("resources: checking memory and descriptors")
	return Evaluate(wire.ParseValues(payload), c.limits)
}

// Evaluate applies limits to a HEALTH payload. Memory is checked first.
func Evaluate(v wire.Values, limits Limits) error {
	if err := checkMemory(v, limits.MemoryPercent); err != nil {
		return err
	}
	return checkFD(v, limits.FDReserve)
}

func checkMemory(v wire.Values, limit float64) error {
	physical, err1 := floatField(v, "physical_memory")
	used, err2 := floatField(v, "mem_used_total")
	if err1 != nil || err2 != nil || physical <= 0 {
		return unexpectedHealth()
	}

	percent := used / physical * 100
	if percent >= limit {
		return &LimitError{
			Resource: "memory",
			Message:  fmt.Sprintf("Memory consumption %g%% exceeds the limit (%g%%)", percent, limit),
		}
	}
	return nil
}

func checkFD(v wire.Values, reserve int) error {
	soft, ok1 := v.Get("proc_fd_soft_limit")
	used, ok2 := v.Get("proc_fd_used")
	if !ok1 || !ok2 {
		return unexpectedHealth()
	}
	if soft == notApplicable || used == notApplicable {
		return nil
	}

	limit, err1 := strconv.Atoi(soft)
	inUse, err2 := strconv.Atoi(used)
	if err1 != nil || err2 != nil {
		return unexpectedHealth()
	}
	if limit-inUse < reserve {
		return &LimitError{
			Resource: "fd",
			Message: fmt.Sprintf("FD consumption %d exceeds the limit (at least %d must be available out of %d available for the process)",
				inUse, reserve, limit),
		}
	}
	return nil
}

func floatField(v wire.Values, key string) (float64, error) {
	s, ok := v.Get(key)
	if !ok {
		return 0, fmt.Errorf("missing %s", key)
	}
	return strconv.ParseFloat(s, 64)
}

func unexpectedHealth() error {
	return wire.Unexpectedf("Unexpected output for HEALTH command")
}
