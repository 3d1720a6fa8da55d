package shipper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/obsidianstack/queueprobe/pkg/types"
)

// DefaultTimeout bounds one publish attempt including retries.
const DefaultTimeout = 2 * time.Second

// messageWriter is the subset of *kafka.Writer used here; tests substitute a
// fake.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Options configures the Kafka publisher.
type Options struct {
	Brokers []string
	Topic   string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Shipper publishes run reports as JSON, keyed by service so all results of
// one service land in the same partition.
type Shipper struct {
	w       messageWriter
	topic   string
	timeout time.Duration
	logger  *slog.Logger
}

// New returns a Shipper writing to opts.Topic on opts.Brokers. No connection
// is made until the first Ship.
func New(opts Options) *Shipper {
	w := &kafka.Writer{
		Addr:         kafka.TCP(opts.Brokers...),
		Topic:        opts.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
	}
	return newShipper(w, opts)
}

func newShipper(w messageWriter, opts Options) *Shipper {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Shipper{w: w, topic: opts.Topic, timeout: opts.Timeout, logger: opts.Logger}
}

// Ship publishes r and waits for the broker's acknowledgement or the timeout.
func (s *Shipper) Ship(ctx context.Context, r types.Report) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("shipper: marshal report: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	if err := s.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(r.Service),
		Value: payload,
		Time:  r.StartedAt,
	}); err != nil {
		return fmt.Errorf("shipper: publish to %s: %w", s.topic, err)
	}
	s.logger.Debug("shipper: report published", "topic", s.topic, "run_id", r.RunID, "latency", time.Since(start))
	return nil
}

// Close flushes and releases the writer.
func (s *Shipper) Close() error {
	return s.w.Close()
}
