package coord

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/obsidianstack/queueprobe/probe/internal/wire"
)

// DefaultWindow is how long a peer's record is considered fresh.
const DefaultWindow = time.Second

// clientDataVersion tells the server to overwrite the record unconditionally.
const clientDataVersion = -1

// Executor is the subset of *wire.Conn the coordinator needs.
type Executor interface {
	Execute(ctx context.Context, cmd wire.Command) (string, error)
	ExecuteLines(ctx context.Context, cmd wire.Command) ([]string, error)
}

// Options configures a Coordinator. Zero values select the defaults.
type Options struct {
	// ClientNode is the identity the server files this probe's data under.
	ClientNode string
	Window     time.Duration

	// Now and Sleep are injectable for tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	Logger *slog.Logger
}

// Coordinator reads and writes the record shared by probe instances that
// target the same server. It is advisory: nothing is locked, concurrent
// writers simply overwrite each other, and the freshness window bounds how
// stale a reused result can be.
type Coordinator struct {
	exec    Executor
	node    string
	pattern string
	window  time.Duration
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	logger  *slog.Logger
}

// New returns a Coordinator sending its commands through exec.
func New(exec Executor, opts Options) *Coordinator {
	if opts.ClientNode == "" {
		opts.ClientNode = wire.DefaultClientNode
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = Sleep
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Coordinator{
		exec:    exec,
		node:    opts.ClientNode,
		pattern: "CLIENT: '" + opts.ClientNode + "'",
		window:  opts.Window,
		now:     opts.Now,
		sleep:   opts.Sleep,
		logger:  opts.Logger,
	}
}

// Read fetches the client list and returns this node's record. A missing or
// malformed record is reported as absent, not as an error.
func (c *Coordinator) Read(ctx context.Context) (Record, bool, error) {
	lines, err := c.exec.ExecuteLines(ctx, wire.Stat(wire.StatClients))
	if err != nil {
		return Record{}, false, err
	}

	data, found := c.findData(lines)
	if !found {
		c.logger.Debug("coord: no client data", "client_node", c.node)
		return Record{}, false, nil
	}
	rec, ok := ParseRecord(data)
	if !ok {
		c.logger.Debug("coord: ignoring malformed client data", "data", data)
		return Record{}, false, nil
	}
	c.logger.Debug("coord: client data", "verb", rec.Verb, "at", rec.At, "value", rec.Value)
	return rec, true, nil
}

// findData returns the unquoted DATA value inside this node's CLIENT block.
func (c *Coordinator) findData(lines []string) (string, bool) {
	inBlock := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == c.pattern {
			inBlock = true
			continue
		}
		if !inBlock {
			continue
		}
		if strings.HasPrefix(line, "CLIENT:") {
			return "", false
		}
		if !strings.HasPrefix(line, "DATA: ") {
			continue
		}
		data := strings.TrimSpace(line[len("DATA:"):])
		if len(data) < 2 {
			return "", false
		}
		data = data[1 : len(data)-1]
		return data, data != ""
	}
	return "", false
}

// Reuse decides whether a peer's result can stand in for a local run.
//
// A fresh DONE record with a value is reused immediately. A fresh START
// record means a peer is mid-run: wait one window, re-read once, and reuse a
// DONE value if it appeared. Anything else means run locally.
func (c *Coordinator) Reuse(ctx context.Context) (int, bool, error) {
	rec, ok, err := c.Read(ctx)
	if err != nil || !ok {
		return 0, false, err
	}

	switch rec.Verb {
	case VerbDone:
		if !rec.HasValue {
			return 0, false, nil
		}
		if rec.FreshAt(c.now(), c.window) {
			c.logger.Debug("coord: using peer result immediately", "value", rec.Value)
			return rec.Value, true, nil
		}
		c.logger.Debug("coord: peer result is obsolete", "at", rec.At)
	case VerbStart:
		if !rec.FreshAt(c.now(), c.window) {
			c.logger.Debug("coord: peer started too long ago", "at", rec.At)
			return 0, false, nil
		}
		c.logger.Debug("coord: peer run in progress, waiting", "window", c.window)
		if err := c.sleep(ctx, c.window); err != nil {
			return 0, false, err
		}
		rec, ok, err = c.Read(ctx)
		if err != nil || !ok {
			return 0, false, err
		}
		if rec.Verb == VerbDone && rec.HasValue {
			c.logger.Debug("coord: using peer result after waiting", "value", rec.Value)
			return rec.Value, true, nil
		}
	}
	return 0, false, nil
}

// MarkStart announces a local lifecycle run.
func (c *Coordinator) MarkStart(ctx context.Context) error {
	return c.write(ctx, Record{Verb: VerbStart, At: c.now()})
}

// MarkDone publishes the local result.
func (c *Coordinator) MarkDone(ctx context.Context, value int) error {
	return c.write(ctx, Record{Verb: VerbDone, At: c.now(), Value: value, HasValue: true})
}

func (c *Coordinator) write(ctx context.Context, rec Record) error {
	data := rec.String()
	c.logger.Debug("coord: setting client data", "data", data)
	_, err := c.exec.Execute(ctx, wire.SetClientData(data, clientDataVersion))
	return err
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
