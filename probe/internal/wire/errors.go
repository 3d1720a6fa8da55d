package wire

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Conn. Match them with errors.Is.
var (
	// ErrTimeout means the connect, write or read deadline expired.
	ErrTimeout = errors.New("communication timeout")

	// ErrConnection means the socket could not be opened or was reset.
	ErrConnection = errors.New("connection error")

	// ErrUnexpected means the server sent something that is not a valid reply.
	ErrUnexpected = errors.New("unexpected server response")

	// ErrServer is an ERR: reply not covered by a more specific sentinel.
	ErrServer = errors.New("server error")

	// ErrShuttingDown is an ERR: reply announcing a server shutdown.
	ErrShuttingDown = errors.New("server is shutting down")

	// ErrAccessDenied is an ERR: reply refusing the command for lack of permissions.
	ErrAccessDenied = errors.New("access denied")

	// ErrInvalidCommand is returned for commands built from unsafe tokens.
	// Such commands never reach the socket.
	ErrInvalidCommand = errors.New("invalid command")
)

// ReplyError carries the text of a rejected or malformed reply.
// Kind is one of ErrUnexpected, ErrServer, ErrShuttingDown or ErrAccessDenied.
type ReplyError struct {
	Kind    error
	Message string
}

func (e *ReplyError) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Message
}

// Is reports whether target is the sentinel this reply was classified as.
func (e *ReplyError) Is(target error) bool {
	return target == e.Kind
}

// Unexpectedf builds an ErrUnexpected reply error. Packages that interpret
// payloads use it to report fields the server should have sent.
func Unexpectedf(format string, args ...any) error {
	return &ReplyError{Kind: ErrUnexpected, Message: fmt.Sprintf(format, args...)}
}
