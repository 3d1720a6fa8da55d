package report

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// TracerOptions selects where the diagnostic trace goes.
type TracerOptions struct {
	// Verbose writes the trace to Stdout.
	Verbose bool
	// File, when set, receives the trace in append mode whether or not
	// Verbose is set.
	File string
	// Stdout defaults to os.Stdout.
	Stdout io.Writer
}

// Tracer owns the run's logger and the optional trace file.
type Tracer struct {
	Logger *slog.Logger
	file   *os.File
}

// NewTracer builds the trace logger. With neither Verbose nor File the
// logger discards everything. Close must be called to release the file.
func NewTracer(opts TracerOptions) (*Tracer, error) {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}

	var writers []io.Writer
	if opts.Verbose {
		writers = append(writers, opts.Stdout)
	}

	t := &Tracer{}
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("report: open trace file: %w", err)
		}
		t.file = f
		writers = append(writers, f)
	}

	if len(writers) == 0 {
		t.Logger = slog.New(slog.DiscardHandler)
		return t, nil
	}
	t.Logger = slog.New(slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{Level: slog.LevelDebug}))
	return t, nil
}

// Close closes the trace file, if any. It is safe to call more than once.
func (t *Tracer) Close() error {
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}
