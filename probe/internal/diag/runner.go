package diag

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"github.com/obsidianstack/queueprobe/probe/internal/compute"
	"github.com/obsidianstack/queueprobe/probe/internal/coord"
	"github.com/obsidianstack/queueprobe/probe/internal/resources"
	"github.com/obsidianstack/queueprobe/probe/internal/wire"
)

// Defaults for Config.
const (
	DefaultTestQueue         = "LBSMDTestQueue"
	DefaultQueueClass        = "default"
	DefaultAffinityPrefix    = "LBSMDTest_via_"
	DefaultStartJitter       = 100 * time.Millisecond
	DefaultClientDataVersion = "4.17.0"
	DefaultHealthVersion     = "4.16.10"
)

// Config holds the tunables of a probe run.
type Config struct {
	// Conn configures the control connection. Its Logger is replaced by the
	// runner's.
	Conn wire.Options

	TestQueue      string
	QueueClass     string
	AffinityPrefix string

	// PeerWindow is how fresh a peer's record must be to be reused, and how
	// long to wait for a peer that is mid-run.
	PeerWindow time.Duration
	// StartJitter is the upper bound of the random delay before reading
	// peer records, so that probes started together do not all miss.
	StartJitter time.Duration

	// Minimum server versions (x.y.z) for client data and the HEALTH command.
	ClientDataVersion string
	HealthVersion     string

	Limits resources.Limits
	Curve  compute.Curve
}

// DefaultConfig returns the stock probe configuration.
func DefaultConfig() Config {
	return Config{
		Conn: wire.Options{
			Timeout:       wire.DefaultTimeout,
			Program:       wire.DefaultProgram,
			ClientNode:    wire.DefaultClientNode,
			ClientSession: wire.DefaultClientSession,
		},
		TestQueue:         DefaultTestQueue,
		QueueClass:        DefaultQueueClass,
		AffinityPrefix:    DefaultAffinityPrefix,
		PeerWindow:        coord.DefaultWindow,
		StartJitter:       DefaultStartJitter,
		ClientDataVersion: DefaultClientDataVersion,
		HealthVersion:     DefaultHealthVersion,
		Limits:            resources.DefaultLimits(),
		Curve:             compute.DefaultCurve(),
	}
}

// Alerter receives the one-line explanation of a failed or refused run.
type Alerter interface {
	Alert(code int, message string)
}

type nopAlerter struct{}

func (nopAlerter) Alert(int, string) {}

// Runner drives the staged diagnostic against one server.
type Runner struct {
	cfg     Config
	scorer  *compute.Scorer
	alerter Alerter
	logger  *slog.Logger

	// Replaced in tests.
	dial   func(ctx context.Context, addr string, opts wire.Options) (*wire.Conn, error)
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(limit time.Duration) time.Duration
}

// NewRunner returns a Runner. A nil alerter or logger discards output.
func NewRunner(cfg Config, alerter Alerter, logger *slog.Logger) *Runner {
	if alerter == nil {
		alerter = nopAlerter{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{
		cfg:     cfg,
		scorer:  compute.NewScorer(cfg.Curve),
		alerter: alerter,
		logger:  logger,
		dial:    wire.Dial,
		now:     time.Now,
		sleep:   coord.Sleep,
		jitter:  randomJitter,
	}
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return rand.N(limit)
}

// Run probes req.Address once. It never panics on server misbehaviour and
// always closes the connection before returning.
func (r *Runner) Run(ctx context.Context, req Request) Result {
	log := r.logger.With("service", req.Service, "endpoint", req.Address)

	opts := r.cfg.Conn
	opts.Logger = log
	log.Debug("diag: connecting", "timeout", opts.Timeout)
	conn, err := r.dial(ctx, req.Address, opts)
	if err == nil {
		if err = conn.Login(ctx); err != nil {
			conn.Close()
		}
	}
	if err != nil {
		return r.fail(StageConnect, req, Classify(err), log)
	}
	defer conn.Close()

	s := &session{
		r:    r,
		conn: conn,
		req:  req,
		log:  log,
	}
	res, err := s.diagnose(ctx)
	if err != nil {
		res = r.fail(StageDiagnose, req, Classify(err), log)
	}
	res.ServerVersion = s.version
	return res
}

func (r *Runner) fail(stage Stage, req Request, f *Failure, log *slog.Logger) Result {
	code := codeFor(stage, f)

	var msg string
	switch {
	case f.Kind == KindInterrupted:
		msg = "Ctrl + C received"
	case stage == StageConnect && f.Timeout:
		msg = "Error connecting to server: timeout"
	case stage == StageConnect:
		msg = "Error connecting to server: " + f.Error()
	default:
		msg = "(service " + req.Service + ") " + f.Error()
	}
	log.Debug("diag: run failed", "kind", f.Kind, "code", code, "err", f.Err)
	r.alerter.Alert(code, msg)

	if f.Kind.Smoothed() {
		code = r.scorer.Smooth(code, req.Previous, req.HasPrevious)
	}
	return Result{Code: code, Reason: msg, Source: SourceFailure, Failure: f}
}

// session is the state of one connected run.
type session struct {
	r    *Runner
	conn *wire.Conn
	req  Request
	log  *slog.Logger

	version     string
	coord       *coord.Coordinator // nil when the server cannot store client data
	queueExists bool
	onQueue     bool // SETQUEUE already sent
}

func (s *session) diagnose(ctx context.Context) (Result, error) {
	cfg := s.r.cfg

	drained, err := s.drained(ctx)
	if err != nil {
		return Result{}, err
	}
	if drained {
		s.log.Info("diag: server is in drained shutdown")
		return Result{Code: compute.CodeDraining, Source: SourceEarlyExit}, nil
	}

	if s.version, err = s.serverVersion(ctx); err != nil {
		return Result{}, err
	}
	s.log.Debug("diag: server version", "version", s.version)

	if atLeast(s.version, cfg.ClientDataVersion) {
		if res, ok, err := s.peerResult(ctx); err != nil || ok {
			return res, err
		}
	}

	if atLeast(s.version, cfg.HealthVersion) {
		checker := resources.NewChecker(s.conn, cfg.Limits, s.log)
		if err := checker.Check(ctx); err != nil {
			return Result{}, err
		}
	}

	if res, ok, err := s.provision(ctx); err != nil || ok {
		return res, err
	}

	accepting, err := s.acceptsSubmits(ctx)
	if err != nil {
		return Result{}, err
	}
	if !accepting {
		const msg = "test queue refuses submits"
		s.r.alerter.Alert(compute.CodeRefusesSubmits, msg)
		s.markDone(ctx, compute.CodeRefusesSubmits)
		return Result{Code: compute.CodeRefusesSubmits, Reason: msg, Source: SourceEarlyExit}, nil
	}

	if s.coord != nil {
		if err := s.coord.MarkStart(ctx); err != nil {
			s.log.Warn("diag: could not announce start", "err", err)
		}
	}

	start := s.r.now()
	if err := runLifecycle(ctx, s.conn, cfg.AffinityPrefix+s.req.Service, s.log); err != nil {
		return Result{}, err
	}
	elapsed := s.r.now().Sub(start)

	score := s.r.scorer.Score(elapsed, s.req.Previous, s.req.HasPrevious)
	s.log.Debug("diag: lifecycle done", "elapsed", elapsed, "raw", score.Raw, "value", score.Value, "smoothed", score.Smoothed())
	s.markDone(ctx, score.Value)

	return Result{Code: score.Value, Source: SourceMeasured, Elapsed: elapsed, Raw: score.Raw}, nil
}

// drained reports the DrainedShutdown flag from the general status block.
func (s *session) drained(ctx context.Context) (bool, error) {
	s.log.Debug("diag: checking drained shutdown status")
	lines, err := s.conn.ExecuteLines(ctx, wire.Stat(wire.StatGeneral))
	if err != nil {
		return false, err
	}
	for _, line := range lines {
		if !strings.Contains(strings.ToLower(line), "drainedshutdown") {
			continue
		}
		parts := strings.Split(line, ":")
		if len(parts) != 2 {
			return false, wire.Unexpectedf("Unexpected output format for STAT")
		}
		return strings.TrimSpace(parts[1]) != "0", nil
	}
	return false, wire.Unexpectedf("Unexpected output format for STAT - DrainedShutdown value is not found")
}

func (s *session) serverVersion(ctx context.Context) (string, error) {
	payload, err := s.conn.Execute(ctx, wire.Version())
	if err != nil {
		return "", err
	}
	v, ok := wire.ParseValues(payload).Get("server_version")
	if !ok {
		return "", wire.Unexpectedf("VERSION reply carries no server_version")
	}
	if !semver.IsValid("v" + v) {
		return "", wire.Unexpectedf("unexpected server version %q", v)
	}
	return v, nil
}

// atLeast compares x.y.z versions.
func atLeast(version, floor string) bool {
	return semver.Compare("v"+version, "v"+floor) >= 0
}

// peerResult waits the start jitter and, when the test queue already exists,
// looks for a result a concurrent probe has just produced.
func (s *session) peerResult(ctx context.Context) (Result, bool, error) {
	cfg := s.r.cfg
	s.coord = coord.New(s.conn, coord.Options{
		ClientNode: cfg.Conn.ClientNode,
		Window:     cfg.PeerWindow,
		Now:        s.r.now,
		Sleep:      s.r.sleep,
		Logger:     s.log,
	})

	if err := s.r.sleep(ctx, s.r.jitter(cfg.StartJitter)); err != nil {
		return Result{}, false, err
	}

	exists, err := s.testQueueExists(ctx)
	if err != nil || !exists {
		return Result{}, false, err
	}
	if err := s.switchQueue(ctx); err != nil {
		return Result{}, false, err
	}

	value, ok, err := s.coord.Reuse(ctx)
	if err != nil || !ok {
		return Result{}, false, err
	}
	s.log.Info("diag: reusing result of a concurrent probe", "value", value)
	return Result{Code: value, Source: SourcePeer}, true, nil
}

// provision makes sure the test queue exists and is selected. ok is true when
// the run has to stop because the queue class is missing.
func (s *session) provision(ctx context.Context) (Result, bool, error) {
	cfg := s.r.cfg

	if !s.queueExists {
		exists, err := s.testQueueExists(ctx)
		if err != nil {
			return Result{}, false, err
		}
		if !exists {
			found, err := s.hasLine(ctx, wire.StatClasses, "[qclass "+cfg.QueueClass+"]")
			if err != nil {
				return Result{}, false, err
			}
			if !found {
				msg := cfg.QueueClass + " queue class has not been found"
				s.r.alerter.Alert(compute.CodeNoQueueClass, msg)
				return Result{Code: compute.CodeNoQueueClass, Reason: msg, Source: SourceEarlyExit}, true, nil
			}
			if err := s.createQueue(ctx); err != nil {
				return Result{}, false, err
			}
		}
	}

	if !s.onQueue {
		if err := s.switchQueue(ctx); err != nil {
			return Result{}, false, err
		}
	}
	return Result{}, false, nil
}

func (s *session) testQueueExists(ctx context.Context) (bool, error) {
	exists, err := s.hasLine(ctx, wire.StatQueues, "[queue "+s.r.cfg.TestQueue+"]")
	if err == nil {
		s.queueExists = exists
	}
	return exists, err
}

func (s *session) hasLine(ctx context.Context, section, prefix string) (bool, error) {
	s.log.Debug("diag: looking up", "section", section, "prefix", prefix)
	lines, err := s.conn.ExecuteLines(ctx, wire.Stat(section))
	if err != nil {
		return false, err
	}
	for _, line := range lines {
		if strings.HasPrefix(line, prefix) {
			return true, nil
		}
	}
	return false, nil
}

// createQueue tolerates a concurrent probe having created the queue first.
// The server reports that only in the error text.
func (s *session) createQueue(ctx context.Context) error {
	cfg := s.r.cfg
	s.log.Info("diag: creating test queue", "queue", cfg.TestQueue, "class", cfg.QueueClass)
	_, err := s.conn.Execute(ctx, wire.CreateQueue(cfg.TestQueue, cfg.QueueClass))
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return err
	}
	s.queueExists = true
	return nil
}

func (s *session) switchQueue(ctx context.Context) error {
	s.log.Debug("diag: switching queue", "queue", s.r.cfg.TestQueue)
	if _, err := s.conn.Execute(ctx, wire.SetQueue(s.r.cfg.TestQueue)); err != nil {
		return err
	}
	s.onQueue = true
	return nil
}

func (s *session) acceptsSubmits(ctx context.Context) (bool, error) {
	payload, err := s.conn.Execute(ctx, wire.QueueInfo(s.r.cfg.TestQueue))
	if err != nil {
		return false, err
	}
	refuse, ok := wire.ParseValues(payload).Get("refuse_submits")
	return !ok || refuse == "false", nil
}

// markDone publishes value to peers. Failures never change the result.
func (s *session) markDone(ctx context.Context, value int) {
	if s.coord == nil {
		return
	}
	if err := s.coord.MarkDone(ctx, value); err != nil {
		s.log.Warn("diag: could not publish result", "err", err)
	}
}
