// Package wire implements the textual control protocol spoken by the job-queue
// server.
//
// A Conn is one exclusively owned TCP session. Login sends the administrative
// handshake line (no reply). Execute writes one command line and reads one
// reply; ExecuteLines reads a multi-line reply terminated by an END line.
// Replies look like "OK:<payload>" or "ERR:<message>"; lines are delimited by
// "\r\n", "\n", "\r" or NUL. Bytes read past the current line stay buffered
// for the next call.
//
// Failures are reported with sentinel errors (ErrTimeout, ErrConnection,
// ErrUnexpected, ErrServer, ErrShuttingDown, ErrAccessDenied,
// ErrInvalidCommand) matched with errors.Is. The transport never retries;
// that is left to the caller.
//
// Commands are built with typed constructors (Version, Stat, Submit, Put, ...)
// that validate their arguments, and structured payloads are decoded with
// ParseValues.
package wire
