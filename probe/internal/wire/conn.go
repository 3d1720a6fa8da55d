package wire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"
)

// Defaults applied by Dial when Options fields are zero.
const (
	DefaultTimeout       = time.Second
	DefaultProgram       = "netschedule_admin"
	DefaultClientNode    = "health_check"
	DefaultClientSession = "check_session"

	readChunk = 8192
	endMarker = "END"
)

// Options configures a control connection.
type Options struct {
	// Timeout bounds the connect and every single write or read.
	Timeout time.Duration

	// Program, ClientNode and ClientSession make up the login line.
	// ClientNode is also the identity the server files client data under.
	Program       string
	ClientNode    string
	ClientSession string

	// Logger receives one debug record per command and reply. Nil disables tracing.
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Program == "" {
		o.Program = DefaultProgram
	}
	if o.ClientNode == "" {
		o.ClientNode = DefaultClientNode
	}
	if o.ClientSession == "" {
		o.ClientSession = DefaultClientSession
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// Conn is an exclusively owned, strictly half-duplex control session: every
// command is followed by reading its complete reply before the next one is
// written.
//
// buf holds bytes received but not yet split into reply lines. It always
// contains zero or more complete or partial lines; consumed bytes are
// compacted away.
type Conn struct {
	conn   net.Conn
	opts   Options
	buf    []byte
	chunk  []byte
	skipLF bool // last line ended with a lone '\r' at the buffer edge
	stop   func() bool
}

// Dial opens a TCP connection to addr (host:port). Cancelling ctx expires the
// socket deadline, which aborts a blocked read or write.
func Dial(ctx context.Context, addr string, opts Options) (*Conn, error) {
	opts = opts.withDefaults()

	d := net.Dialer{Timeout: opts.Timeout}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("wire: connect %s: %w", addr, ctx.Err())
		}
		return nil, netError("connect "+addr, err)
	}

	return newConn(ctx, nc, opts), nil
}

func newConn(ctx context.Context, nc net.Conn, opts Options) *Conn {
	c := &Conn{
		conn:  nc,
		opts:  opts.withDefaults(),
		chunk: make([]byte, readChunk),
	}
	c.stop = context.AfterFunc(ctx, func() {
		_ = nc.SetDeadline(time.Now())
	})
	return c
}

// Close releases the socket. It is safe to call more than once.
func (c *Conn) Close() error {
	if c.conn == nil {
		return nil
	}
	c.stop()
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Login sends the administrative handshake. The server does not reply to it.
func (c *Conn) Login(ctx context.Context) error {
	line := fmt.Sprintf("%s client_node=%s client_session=%s client_type=admin\n\n",
		c.opts.Program, c.opts.ClientNode, c.opts.ClientSession)
	c.opts.Logger.Debug("wire: login", "client_node", c.opts.ClientNode)
	return c.write(ctx, "login", line)
}

// Execute sends cmd and returns the payload of its single-line OK reply.
func (c *Conn) Execute(ctx context.Context, cmd Command) (string, error) {
	if err := c.send(ctx, cmd); err != nil {
		return "", err
	}
	reply, err := c.readReply(ctx)
	if err != nil {
		return "", err
	}
	c.opts.Logger.Debug("wire: reply", "cmd", cmd.String(), "payload", reply)
	return reply, nil
}

// ExecuteLines sends cmd and collects a multi-line reply up to the END
// marker. Empty lines are dropped; an immediate END yields an empty slice.
func (c *Conn) ExecuteLines(ctx context.Context, cmd Command) ([]string, error) {
	if err := c.send(ctx, cmd); err != nil {
		return nil, err
	}
	lines := []string{}
	for {
		line, err := c.readReply(ctx)
		if err != nil {
			return nil, err
		}
		if line == endMarker {
			c.opts.Logger.Debug("wire: reply", "cmd", cmd.String(), "lines", len(lines))
			return lines, nil
		}
		if line != "" {
			lines = append(lines, line)
		}
	}
}

func (c *Conn) send(ctx context.Context, cmd Command) error {
	if err := cmd.Err(); err != nil {
		return err
	}
	if c.conn == nil {
		return fmt.Errorf("wire: %s: %w: connection is closed", cmd, ErrConnection)
	}
	c.opts.Logger.Debug("wire: send", "cmd", cmd.String())
	return c.write(ctx, cmd.String(), cmd.String()+"\n")
}

func (c *Conn) write(ctx context.Context, op, text string) error {
	if err := c.conn.SetWriteDeadline(c.deadline(ctx)); err != nil {
		return c.fail(ctx, op, err)
	}
	if _, err := io.WriteString(c.conn, text); err != nil {
		return c.fail(ctx, op, err)
	}
	return nil
}

func (c *Conn) readReply(ctx context.Context) (string, error) {
	line, err := c.readLine(ctx)
	if err != nil {
		return "", err
	}
	return classify(line)
}

// readLine returns the next delimited line, reading from the socket only
// when buf holds no complete line.
func (c *Conn) readLine(ctx context.Context) (string, error) {
	for {
		if line, ok := c.nextLine(); ok {
			return line, nil
		}

		if err := c.conn.SetReadDeadline(c.deadline(ctx)); err != nil {
			return "", c.fail(ctx, "read", err)
		}
		n, err := c.conn.Read(c.chunk)
		if n > 0 {
			c.buf = append(c.buf, c.chunk[:n]...)
		}
		if err == nil {
			continue
		}
		if line, ok := c.nextLine(); ok {
			return line, nil
		}
		if errors.Is(err, io.EOF) {
			if len(c.buf) > 0 {
				line := string(c.buf)
				c.buf = c.buf[:0]
				return strings.TrimSpace(line), nil
			}
			return "", Unexpectedf("unexpected server response: connection closed by server")
		}
		return "", c.fail(ctx, "read", err)
	}
}

// nextLine splits the first line off buf. Delimiters are "\r\n", "\n", "\r"
// and NUL.
func (c *Conn) nextLine() (string, bool) {
	if c.skipLF && len(c.buf) > 0 {
		if c.buf[0] == '\n' {
			c.buf = append(c.buf[:0], c.buf[1:]...)
		}
		c.skipLF = false
	}

	i := bytes.IndexAny(c.buf, "\r\n\x00")
	if i < 0 {
		return "", false
	}
	line := string(c.buf[:i])
	width := 1
	if c.buf[i] == '\r' {
		switch {
		case i+1 == len(c.buf):
			c.skipLF = true
		case c.buf[i+1] == '\n':
			width = 2
		}
	}
	c.buf = append(c.buf[:0], c.buf[i+width:]...)
	return line, true
}

func (c *Conn) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(c.opts.Timeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		return cd
	}
	return d
}

func (c *Conn) fail(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("wire: %s: %w", op, ctx.Err())
	}
	return netError(op, err)
}

func netError(op string, err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("wire: %s: %w: %w", op, ErrTimeout, err)
	}
	return fmt.Errorf("wire: %s: %w: %w", op, ErrConnection, err)
}

// classify turns a reply line into its payload or a ReplyError.
func classify(line string) (string, error) {
	switch {
	case strings.HasPrefix(line, "OK:"):
		return strings.TrimSpace(line[len("OK:"):]), nil
	case strings.HasPrefix(line, "ERR:"):
		msg := strings.TrimSpace(line[len("ERR:"):])
		lower := strings.ToLower(msg)
		switch {
		case strings.Contains(lower, "shuttingdown"):
			return "", &ReplyError{Kind: ErrShuttingDown, Message: "server is shutting down"}
		case strings.Contains(lower, "access denied"):
			return "", &ReplyError{Kind: ErrAccessDenied, Message: msg}
		}
		return "", &ReplyError{Kind: ErrServer, Message: msg}
	}
	return "", Unexpectedf("unexpected server response: %s", strings.TrimSpace(line))
}
