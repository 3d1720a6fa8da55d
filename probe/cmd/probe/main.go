package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/obsidianstack/queueprobe/pkg/types"
	"github.com/obsidianstack/queueprobe/probe/internal/compute"
	"github.com/obsidianstack/queueprobe/probe/internal/config"
	"github.com/obsidianstack/queueprobe/probe/internal/diag"
	"github.com/obsidianstack/queueprobe/probe/internal/report"
	"github.com/obsidianstack/queueprobe/probe/internal/shipper"
	"github.com/obsidianstack/queueprobe/probe/internal/textfile"
)

const usage = "usage: probe [flags] <service-name> <host:port> [last-exit-code [last-repeat-count [seconds-since-last-check]]]"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// invocation is the parsed positional arguments.
type invocation struct {
	service string
	address string

	last    int
	hasLast bool

	// Accepted for scheduler compatibility; only traced.
	repeatCount      int
	secondsSinceLast int
}

// run executes one probe and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) (code int) {
	argAlerts := report.NewAlerter(stderr, 0, false, false, nil)

	defer func() {
		if r := recover(); r != nil {
			var msg string
			code, msg = panicResult(r)
			argAlerts.Alert(code, msg)
			fmt.Fprintf(stderr, "%s\n", debug.Stack())
		}
	}()

	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, usage)
		fs.PrintDefaults()
	}
	var verbose bool
	fs.BoolVar(&verbose, "v", false, "trace the run to stdout")
	fs.BoolVar(&verbose, "verbose", false, "trace the run to stdout")
	configPath := fs.String("config", "", "path to an optional YAML config file")
	logFile := fs.String("log-file", "", "append the trace to this file (overrides log.file)")
	envFile := fs.String("env-file", ".env", "optional dotenv file seeding QUEUEPROBE_* variables")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return compute.CodeBadArgCount
		}
		argAlerts.Alert(compute.CodeBadArgs, "Error processing command line arguments: "+err.Error())
		return compute.CodeBadArgs
	}

	inv, code, msg := parseArgs(fs.Args())
	if code != 0 {
		argAlerts.Alert(code, msg)
		return code
	}

	if err := config.LoadEnvFile(*envFile); err != nil {
		argAlerts.Alert(compute.CodeBadArgs, "Error processing configuration: "+err.Error())
		return compute.CodeBadArgs
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		argAlerts.Alert(compute.CodeBadArgs, "Error processing configuration: "+err.Error())
		return compute.CodeBadArgs
	}
	dc, err := cfg.Diag()
	if err != nil {
		argAlerts.Alert(compute.CodeBadArgs, "Error processing configuration: "+err.Error())
		return compute.CodeBadArgs
	}
	if *logFile != "" {
		cfg.Log.File = *logFile
	}

	tracer, err := report.NewTracer(report.TracerOptions{Verbose: verbose, File: cfg.Log.File, Stdout: stdout})
	if err != nil {
		// The trace is optional; the probe still runs without its file.
		fmt.Fprintf(stderr, "probe: %v\n", err)
		tracer, _ = report.NewTracer(report.TracerOptions{Verbose: verbose, Stdout: stdout})
	}
	defer tracer.Close()

	runID := uuid.NewString()
	logger := tracer.Logger.With("run_id", runID)
	logger.Debug("probe: starting",
		"service", inv.service,
		"endpoint", inv.address,
		"last_code", lastAttr(inv),
		"last_repeat_count", inv.repeatCount,
		"seconds_since_last", inv.secondsSinceLast,
	)

	req := diag.Request{
		Service:     inv.service,
		Address:     inv.address,
		Last:        inv.last,
		HasLast:     inv.hasLast,
		Previous:    inv.last,
		HasPrevious: inv.hasLast,
	}
	if !inv.hasLast && cfg.Metrics.RememberLast && cfg.Metrics.Textfile != "" {
		prev, ok, err := textfile.ReadLastCode(cfg.Metrics.Textfile, inv.service, inv.address)
		switch {
		case err != nil:
			logger.Warn("probe: remembered code unavailable", "path", cfg.Metrics.Textfile, "err", err)
		case ok:
			req.Previous, req.HasPrevious = prev, true
			logger.Debug("probe: using remembered code for hysteresis", "previous", prev)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	legacy := cfg.Probe.LegacyStandbyCodes
	alerter := report.NewAlerter(stderr, inv.last, inv.hasLast, legacy, logger)

	started := time.Now()
	res := diag.NewRunner(dc, alerter, logger).Run(ctx, req)

	result := compute.Adjust(res.Code, legacy)
	exit := compute.Finalize(result, inv.last, inv.hasLast)

	rep := buildReport(runID, inv, started, res, result, exit)
	logger.Info("probe: finished",
		"service", rep.Service,
		"endpoint", rep.Endpoint,
		"source", rep.Source,
		"result_code", rep.ResultCode,
		"exit_code", rep.ExitCode,
		"lifecycle", res.Elapsed,
		"alerts", alerter.Printed(),
	)

	if cfg.Metrics.Textfile != "" {
		if err := textfile.Write(cfg.Metrics.Textfile, rep); err != nil {
			logger.Warn("probe: textfile not written", "path", cfg.Metrics.Textfile, "err", err)
		}
	}
	if cfg.Publish.Enabled() {
		publish(context.WithoutCancel(ctx), cfg.Publish, rep, logger)
	}
	return exit
}

// parseArgs validates the positional arguments. A non-zero code is the
// no-action exit code for the problem described by msg.
func parseArgs(args []string) (inv invocation, code int, msg string) {
	if len(args) < 2 {
		return inv, compute.CodeBadArgCount, "Incorrect number of arguments"
	}
	inv.service = args[0]

	host, port, err := net.SplitHostPort(args[1])
	if err != nil {
		return inv, compute.CodeBadAddress, "invalid connection point format. Expected host:port"
	}
	if n, err := strconv.Atoi(port); err != nil || n <= 0 || n > 65535 {
		return inv, compute.CodeBadAddress, "invalid connection point format. Expected host:port"
	}
	if host == "" {
		host = "localhost"
	}
	inv.address = net.JoinHostPort(host, port)

	ints := []*int{&inv.last, &inv.repeatCount, &inv.secondsSinceLast}
	for i, arg := range args[2:] {
		if i >= len(ints) {
			break
		}
		n, err := strconv.Atoi(arg)
		if err != nil {
			return inv, compute.CodeBadArgs, "Error processing command line arguments: " + err.Error()
		}
		*ints[i] = n
	}
	inv.hasLast = len(args) > 2
	return inv, 0, ""
}

// panicResult maps a recovered panic value to its exit code: an error is an
// internal failure, anything else is unknown.
func panicResult(r any) (int, string) {
	if err, ok := r.(error); ok {
		return compute.CodeInternal, "Internal check script error: " + err.Error()
	}
	return compute.CodeUnknown, fmt.Sprintf("Generic unknown check script error: %v", r)
}

func buildReport(runID string, inv invocation, started time.Time, res diag.Result, result, exit int) types.Report {
	rep := types.Report{
		RunID:            runID,
		Service:          inv.service,
		Endpoint:         inv.address,
		StartedAt:        started.UTC(),
		ResultCode:       result,
		ExitCode:         exit,
		Source:           string(res.Source),
		Reason:           res.Reason,
		LifecycleSeconds: res.Elapsed.Seconds(),
		RawPenalty:       res.Raw,
		ServerVersion:    res.ServerVersion,
	}
	if inv.hasLast {
		last := inv.last
		rep.LastCode = &last
	}
	if res.Failure != nil {
		rep.FailureKind = res.Failure.Kind.String()
	}
	return rep
}

func publish(ctx context.Context, cfg config.PublishConfig, rep types.Report, logger *slog.Logger) {
	s := shipper.New(shipper.Options{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		Timeout: cfg.Timeout,
		Logger:  logger,
	})
	defer s.Close()

	if err := s.Ship(ctx, rep); err != nil {
		logger.Warn("probe: report not published", "topic", cfg.Topic, "err", err)
	}
}

func lastAttr(inv invocation) any {
	if !inv.hasLast {
		return "none"
	}
	return inv.last
}
