package report

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/obsidianstack/queueprobe/probe/internal/compute"
)

const (
	alertPrefix = "Queue health check."
	alertLayout = "01-02-06 15:04:05"
)

// Alerter prints one-line alerts to the error stream for the scheduler's
// mail. An alert whose code, after the legacy remap, equals the previous
// run's code is suppressed: the condition was already reported.
type Alerter struct {
	w       io.Writer
	last    int
	hasLast bool
	legacy  bool
	logger  *slog.Logger

	now func() time.Time

	mu      sync.Mutex
	printed int
}

// NewAlerter returns an Alerter writing to w. last/hasLast is the previous
// exit code as passed by the scheduler. A nil logger discards the trace.
func NewAlerter(w io.Writer, last int, hasLast, legacy bool, logger *slog.Logger) *Alerter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Alerter{w: w, last: last, hasLast: hasLast, legacy: legacy, logger: logger, now: time.Now}
}

// Alert prints message unless code repeats the previous result.
func (a *Alerter) Alert(code int, message string) {
	adjusted := compute.Adjust(code, a.legacy)
	if a.hasLast && adjusted == a.last {
		a.logger.Debug("report: alert suppressed, unchanged since last run", "code", adjusted, "message", message)
		return
	}
	a.logger.Warn("report: alert", "code", adjusted, "message", message)

	a.mu.Lock()
	defer a.mu.Unlock()
	fmt.Fprintf(a.w, "%s %s %s\n", a.now().Format(alertLayout), alertPrefix, message)
	a.printed++
}

// Printed returns the number of alerts written.
func (a *Alerter) Printed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.printed
}
