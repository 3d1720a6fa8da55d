package nstest

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
)

// Server is an in-process TCP listener that answers the control protocol with
// a scripted Queue. Each accepted connection is served sequentially, one
// command line at a time.
type Server struct {
	Queue *Queue

	lis   net.Listener
	wg    sync.WaitGroup
	mu    sync.Mutex
	cmds  []string
	conns map[net.Conn]struct{}
}

// Start listens on a loopback port and serves q until the test ends.
func Start(t testing.TB, q *Queue) *Server {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("nstest: listen: %v", err)
	}
	s := &Server{Queue: q, lis: lis, conns: map[net.Conn]struct{}{}}

	s.wg.Add(1)
	go s.accept()
	t.Cleanup(s.Close)
	return s
}

// Addr returns the host:port the server listens on.
func (s *Server) Addr() string { return s.lis.Addr().String() }

// Close stops accepting, drops open sessions and waits for them to end.
func (s *Server) Close() {
	_ = s.lis.Close()
	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Commands returns every command line received so far, login line included.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cmds...)
}

// Verbs returns the first token of every non-login command.
func (s *Server) Verbs() []string {
	var out []string
	for _, c := range s.Commands() {
		if strings.HasPrefix(c, "netschedule_admin ") {
			continue
		}
		verb, _, _ := strings.Cut(c, " ")
		out = append(out, verb)
	}
	return out
}

// Received reports whether any command started with verb.
func (s *Server) Received(verb string) bool {
	for _, v := range s.Verbs() {
		if v == verb {
			return true
		}
	}
	return false
}

func (s *Server) accept() {
	defer s.wg.Done()
	for {
		conn, err := s.lis.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}

		s.mu.Lock()
		s.cmds = append(s.cmds, line)
		s.mu.Unlock()

		reply, closeAfter := s.Queue.handle(line)
		if reply != "" {
			if _, err := io.WriteString(conn, reply); err != nil {
				return
			}
		}
		if closeAfter {
			return
		}
	}
}

// lines renders a multi-line reply.
func lines(body ...string) string {
	var b strings.Builder
	for _, l := range body {
		fmt.Fprintf(&b, "OK:%s\n", l)
	}
	b.WriteString("OK:END\n")
	return b.String()
}
