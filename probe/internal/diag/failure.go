package diag

import (
	"context"
	"errors"
	"fmt"

	"github.com/obsidianstack/queueprobe/probe/internal/compute"
	"github.com/obsidianstack/queueprobe/probe/internal/resources"
	"github.com/obsidianstack/queueprobe/probe/internal/wire"
)

// FailureKind is the closed set of ways a probe run can fail.
type FailureKind int

const (
	KindConnectivity       FailureKind = iota + 1 // timeout or lost connection
	KindProtocol                                  // malformed or incomplete reply
	KindServerError                               // ERR: reply
	KindFunctionalMismatch                        // job lifecycle went off script
	KindServerDown                                // server announced shutdown
	KindAccessDenied                              // admin login lacks permissions
	KindResourceExceeded                          // memory or descriptor limit breached
	KindInterrupted                               // run context cancelled
	KindUnknown
)

var kindNames = map[FailureKind]string{
	KindConnectivity:       "connectivity",
	KindProtocol:           "protocol",
	KindServerError:        "server_error",
	KindFunctionalMismatch: "functional_mismatch",
	KindServerDown:         "server_down",
	KindAccessDenied:       "access_denied",
	KindResourceExceeded:   "resource_exceeded",
	KindInterrupted:        "interrupted",
	KindUnknown:            "unknown",
}

func (k FailureKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("FailureKind(%d)", int(k))
}

// Smoothed reports whether the failure code goes through hysteresis. A
// shutting-down server, a permission problem and an interrupted run are
// reported as they are.
func (k FailureKind) Smoothed() bool {
	switch k {
	case KindServerDown, KindAccessDenied, KindInterrupted:
		return false
	}
	return true
}

// Failure is a classified probe error.
type Failure struct {
	Kind    FailureKind
	Timeout bool // KindConnectivity only: deadline expired rather than connection lost
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Message != "" {
		return f.Message
	}
	if f.Err != nil {
		return f.Err.Error()
	}
	return f.Kind.String()
}

func (f *Failure) Unwrap() error { return f.Err }

func mismatchf(format string, args ...any) *Failure {
	return &Failure{Kind: KindFunctionalMismatch, Message: fmt.Sprintf(format, args...)}
}

// Classify maps any error returned while probing to a Failure.
func Classify(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}

	// Transport sentinels come first: a socket timeout from net also matches
	// context.DeadlineExceeded. A cancelled run reaches here without them.
	var le *resources.LimitError
	switch {
	case errors.Is(err, wire.ErrTimeout):
		return &Failure{Kind: KindConnectivity, Timeout: true, Message: "communication timeout", Err: err}
	case errors.Is(err, wire.ErrConnection):
		return &Failure{Kind: KindConnectivity, Message: err.Error(), Err: err}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &Failure{Kind: KindInterrupted, Message: "interrupted", Err: err}
	case errors.Is(err, wire.ErrShuttingDown):
		return &Failure{Kind: KindServerDown, Message: replyText(err), Err: err}
	case errors.Is(err, wire.ErrAccessDenied):
		return &Failure{Kind: KindAccessDenied, Message: replyText(err), Err: err}
	case errors.Is(err, wire.ErrServer):
		return &Failure{Kind: KindServerError, Message: replyText(err), Err: err}
	case errors.Is(err, wire.ErrUnexpected):
		return &Failure{Kind: KindProtocol, Message: replyText(err), Err: err}
	case errors.As(err, &le):
		return &Failure{Kind: KindResourceExceeded, Message: le.Message, Err: err}
	}
	return &Failure{Kind: KindUnknown, Message: err.Error(), Err: err}
}

// replyText prefers the server's own wording over the wrapped chain.
func replyText(err error) string {
	var re *wire.ReplyError
	if errors.As(err, &re) {
		return re.Error()
	}
	return err.Error()
}

// Stage separates the connection stage, whose failures use their own codes,
// from everything after login.
type Stage int

const (
	StageConnect Stage = iota
	StageDiagnose
)

// codeFor maps a failure at a stage to its exit code.
func codeFor(stage Stage, f *Failure) int {
	if f.Kind == KindInterrupted {
		return compute.CodeInterrupted
	}

	if stage == StageConnect {
		switch f.Kind {
		case KindConnectivity:
			if f.Timeout {
				return compute.CodeConnectTimeout
			}
			return compute.CodeConnectFailed
		case KindUnknown:
			return compute.CodeConnectUnknown
		case KindProtocol, KindServerError, KindFunctionalMismatch, KindServerDown,
			KindAccessDenied, KindResourceExceeded:
			return compute.CodeConnectFailed
		}
		return compute.CodeConnectUnknown
	}

	switch f.Kind {
	case KindConnectivity:
		if f.Timeout {
			return compute.CodeTimeout
		}
		return compute.CodeConnectionLost
	case KindProtocol:
		return compute.CodeProtocol
	case KindServerError, KindFunctionalMismatch:
		return compute.CodeServerError
	case KindServerDown:
		return compute.CodeDown
	case KindAccessDenied:
		return compute.CodeAccessDenied
	case KindResourceExceeded:
		return compute.CodeResourceExceeded
	case KindUnknown:
		return compute.CodeFailure
	}
	return compute.CodeFailure
}
