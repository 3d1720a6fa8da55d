package wire

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Command is one request line. Build commands with the constructors below;
// a Command whose arguments failed validation carries the error and is
// refused by Conn before anything is written.
type Command struct {
	line string
	err  error
}

// String returns the wire text without the trailing newline.
func (c Command) String() string { return c.line }

// Err returns the validation error, if any.
func (c Command) Err() error { return c.err }

func build(verb string, args ...string) Command {
	for _, a := range args {
		if err := checkToken(a); err != nil {
			return Command{line: verb, err: fmt.Errorf("%w: %s: %v", ErrInvalidCommand, verb, err)}
		}
	}
	if len(args) == 0 {
		return Command{line: verb}
	}
	return Command{line: verb + " " + strings.Join(args, " ")}
}

func checkToken(tok string) error {
	if tok == "" {
		return fmt.Errorf("empty argument")
	}
	for _, r := range tok {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("argument %q contains whitespace or control characters", tok)
		}
	}
	return nil
}

func param(key, value string) string { return key + "=" + value }

// Stat sections accepted by the server.
const (
	StatGeneral = ""
	StatClients = "CLIENTS"
	StatQueues  = "QUEUES"
	StatClasses = "QCLASSES"
)

// Version asks for the server version (single line).
func Version() Command { return build("VERSION") }

// Stat requests a multi-line statistics block. An empty section requests the
// general server status.
func Stat(section string) Command {
	if section == StatGeneral {
		return build("STAT")
	}
	return build("STAT", section)
}

// Health requests the resource usage report.
func Health() Command { return build("HEALTH") }

// SetQueue switches the session to the named queue.
func SetQueue(name string) Command { return build("SETQUEUE", name) }

// CreateQueue creates a dynamic queue from a queue class.
func CreateQueue(name, class string) Command { return build("QCRE", name, class) }

// QueueInfo requests the queue parameters.
func QueueInfo(name string) Command { return build("QINF2", name) }

// Submit submits a job with the given input and affinity.
func Submit(input, affinity string) Command {
	return build("SUBMIT", input, param("aff", affinity))
}

// Get fetches a job for execution, restricted to the given affinity.
func Get(affinity string) Command {
	return build("GET2", "wnode_aff=0", "any_aff=0", "exclusive_new_aff=0", param("aff", affinity))
}

// WaitStatus reads a job status the way a worker node sees it (WST2).
func WaitStatus(jobKey string) Command { return build("WST2", jobKey) }

// SubmitterStatus reads a job status the way a submitter sees it (SST2).
func SubmitterStatus(jobKey string) Command { return build("SST2", jobKey) }

// Put completes a running job.
func Put(jobKey, authToken string, retCode int, output string) Command {
	return build("PUT2", jobKey, authToken, strconv.Itoa(retCode), output)
}

// SetClientData stores data under the session's client identity. The data is
// sent quoted, so it may contain spaces but not quotes or line breaks.
func SetClientData(data string, version int) Command {
	if data == "" || strings.ContainsAny(data, "\"\r\n\x00") {
		return Command{line: "SETCLIENTDATA", err: fmt.Errorf("%w: SETCLIENTDATA: unsafe data %q", ErrInvalidCommand, data)}
	}
	return Command{line: `SETCLIENTDATA data="` + data + `" version=` + strconv.Itoa(version)}
}
