package nstest

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Job states reported by WST2/SST2.
const (
	StatusPending = "Pending"
	StatusRunning = "Running"
	StatusDone    = "Done"
)

// Hangup is a Hook reply that closes the connection without answering.
const Hangup = "\x00hangup"

// Hook intercepts a command before the simulated queue handles it. call is
// the 1-based number of times a command with this verb has been received.
// Returning ok=false lets the simulation answer.
type Hook func(cmd string, call int) (reply string, ok bool)

// Queue simulates the parts of a job-queue server a probe exercises. Fields
// may be changed before the probe connects.
type Queue struct {
	Version  string // server_version in the VERSION reply
	Drained  string // DrainedShutdown value in STAT; "" omits the line
	Health   string // HEALTH payload
	Classes  []string
	Queues   []string
	Refusing bool // QINF2 reports refuse_submits=true

	// ClientNode selects the CLIENT block that carries ClientData.
	ClientNode string
	ClientData string

	Hook Hook

	mu     sync.Mutex
	calls  map[string]int
	jobs   map[string]string
	nextID int
	latest string
}

// NewQueue returns a healthy 4.17 server with the default class and no test
// queue yet.
func NewQueue() *Queue {
	return &Queue{
		Version:    "4.17.2",
		Drained:    "0",
		Health:     "physical_memory=16000000000&mem_used_total=2000000000&proc_fd_soft_limit=4096&proc_fd_used=120",
		Classes:    []string{"default"},
		ClientNode: "health_check",
	}
}

// SetClientData replaces the stored client record.
func (q *Queue) SetClientData(data string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ClientData = data
}

// StoredClientData returns the current client record.
func (q *Queue) StoredClientData() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ClientData
}

// HasQueue reports whether the named queue exists.
func (q *Queue) HasQueue(name string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, n := range q.Queues {
		if n == name {
			return true
		}
	}
	return false
}

func (q *Queue) handle(cmd string) (reply string, hangup bool) {
	if strings.HasPrefix(cmd, "netschedule_admin ") {
		return "", false
	}

	verb, rest, _ := strings.Cut(cmd, " ")
	q.mu.Lock()
	if q.calls == nil {
		q.calls = map[string]int{}
	}
	q.calls[verb]++
	call := q.calls[verb]
	hook := q.Hook
	q.mu.Unlock()

	if hook != nil {
		if r, ok := hook(cmd, call); ok {
			if r == Hangup {
				return "", true
			}
			return r, false
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return q.simulate(verb, rest), false
}

func (q *Queue) simulate(verb, rest string) string {
	args := strings.Fields(rest)
	switch verb {
	case "VERSION":
		return "OK:server_version=" + q.Version + "&build_date=Oct 01 2024 10:00:00\n"
	case "STAT":
		return q.stat(rest)
	case "HEALTH":
		return "OK:" + q.Health + "\n"
	case "SETQUEUE":
		return "OK:\n"
	case "QCRE":
		if len(args) != 2 {
			return "ERR:eInvalidParameter:QCRE needs a name and a class\n"
		}
		for _, n := range q.Queues {
			if n == args[0] {
				return fmt.Sprintf("ERR:eInvalidParameter:Queue '%s' already exists\n", args[0])
			}
		}
		q.Queues = append(q.Queues, args[0])
		return "OK:\n"
	case "QINF2":
		return fmt.Sprintf("OK:queue_type=dynamic&qclass=default&refuse_submits=%t&timeout=3600\n", q.Refusing)
	case "SUBMIT":
		q.nextID++
		key := fmt.Sprintf("JSID_01_%d_127.0.0.1_9100", q.nextID)
		if q.jobs == nil {
			q.jobs = map[string]string{}
		}
		q.jobs[key] = StatusPending
		q.latest = key
		return "OK:" + key + "\n"
	case "GET2":
		if q.latest == "" || q.jobs[q.latest] != StatusPending {
			return "OK:\n"
		}
		q.jobs[q.latest] = StatusRunning
		return "OK:job_key=" + q.latest + "&input=NoInput&affinity=&client_ip=&client_sid=&auth_token=tok" +
			fmt.Sprint(q.nextID) + "&mask=0\n"
	case "WST2", "SST2":
		if len(args) != 1 {
			return "ERR:eInvalidParameter:job key expected\n"
		}
		st, ok := q.jobs[args[0]]
		if !ok {
			return "ERR:eJobNotFound:Job not found\n"
		}
		return "OK:job_status=" + st + "&client_ip=&client_sid=\n"
	case "PUT2":
		if len(args) != 4 {
			return "ERR:eInvalidParameter:PUT2 arguments\n"
		}
		if q.jobs[args[0]] != StatusRunning {
			return "ERR:eInvalidJobStatus:Cannot accept job results\n"
		}
		q.jobs[args[0]] = StatusDone
		return "OK:\n"
	case "SETCLIENTDATA":
		data, ok := quoted(rest)
		if !ok {
			return "ERR:eInvalidParameter:data expected\n"
		}
		q.ClientData = data
		return "OK:version=1\n"
	}
	return "ERR:eProtocolSyntaxError:Unknown command " + verb + "\n"
}

func (q *Queue) stat(section string) string {
	switch section {
	case "":
		body := []string{"Started: " + time.Date(2024, 10, 1, 10, 0, 0, 0, time.UTC).Format("01/02/2006 15:04:05")}
		if q.Drained != "" {
			body = append(body, "DrainedShutdown: "+q.Drained)
		}
		body = append(body, "Queues: "+fmt.Sprint(len(q.Queues)))
		return lines(body...)
	case "CLIENTS":
		return lines(
			"CLIENT: 'grid_worker'",
			"  STATUS: active",
			"  DATA: ''",
			"CLIENT: '"+q.ClientNode+"'",
			"  STATUS: active",
			"  DATA: '"+q.ClientData+"'",
		)
	case "QUEUES":
		var body []string
		for _, n := range q.Queues {
			body = append(body, "[queue "+n+"]", "kind: dynamic")
		}
		return lines(body...)
	case "QCLASSES":
		var body []string
		for _, c := range q.Classes {
			body = append(body, "[qclass "+c+"]", "timeout: 3600")
		}
		return lines(body...)
	}
	return "ERR:eProtocolSyntaxError:Unknown STAT section " + section + "\n"
}

func quoted(rest string) (string, bool) {
	const prefix = `data="`
	if !strings.HasPrefix(rest, prefix) {
		return "", false
	}
	body := rest[len(prefix):]
	end := strings.IndexByte(body, '"')
	if end < 0 {
		return "", false
	}
	return body[:end], true
}
