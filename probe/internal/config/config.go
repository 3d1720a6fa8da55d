package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/obsidianstack/queueprobe/probe/internal/compute"
	"github.com/obsidianstack/queueprobe/probe/internal/coord"
	"github.com/obsidianstack/queueprobe/probe/internal/diag"
	"github.com/obsidianstack/queueprobe/probe/internal/resources"
	"github.com/obsidianstack/queueprobe/probe/internal/shipper"
	"github.com/obsidianstack/queueprobe/probe/internal/wire"
)

// Config is the probe configuration as read from YAML. Every key can be
// overridden from the environment; see EnvPrefix.
type Config struct {
	Probe    ProbeConfig    `yaml:"probe"`
	Limits   LimitsConfig   `yaml:"limits"`
	Scoring  ScoringConfig  `yaml:"scoring"`
	Versions VersionsConfig `yaml:"versions"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Publish  PublishConfig  `yaml:"publish"`
}

// ProbeConfig holds the connection and test-queue settings.
type ProbeConfig struct {
	// Timeout bounds the connect and every single command round trip.
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`

	// LoginProgram, ClientNode and ClientSession make up the login line.
	// All probes sharing a ClientNode share one client-data record.
	LoginProgram  string `yaml:"login_program" validate:"required,token"`
	ClientNode    string `yaml:"client_node" validate:"required,token"`
	ClientSession string `yaml:"client_session" validate:"required,token"`

	TestQueue      string `yaml:"test_queue" validate:"required,token"`
	QueueClass     string `yaml:"queue_class" validate:"required,token"`
	AffinityPrefix string `yaml:"affinity_prefix" validate:"omitempty,token"`

	// PeerWindow is the freshness window for results of concurrent probes.
	PeerWindow  time.Duration `yaml:"peer_window" validate:"gt=0"`
	StartJitter time.Duration `yaml:"start_jitter" validate:"gte=0"`

	// LegacyStandbyCodes reports 100..110 as 200..210 for old balancers.
	LegacyStandbyCodes bool `yaml:"legacy_standby_codes"`
}

// LimitsConfig holds the static resource check thresholds.
type LimitsConfig struct {
	MemoryPercent float64 `yaml:"memory_percent" validate:"gt=0,lte=100"`
	FDReserve     int     `yaml:"fd_reserve" validate:"gte=0"`
}

// ScoringConfig holds the hysteresis curve.
type ScoringConfig struct {
	Curve           []int `yaml:"curve" validate:"dive,gte=0,lte=99"`
	DefaultPrevious int   `yaml:"default_previous" validate:"gte=0"`
}

// VersionsConfig holds the minimum server versions of optional features.
type VersionsConfig struct {
	ClientData string `yaml:"client_data" validate:"required,version"`
	Health     string `yaml:"health" validate:"required,version"`
}

// LogConfig configures the trace file.
type LogConfig struct {
	// File receives the debug trace in append mode. Empty disables it.
	File string `yaml:"file"`
}

// MetricsConfig configures the Prometheus textfile output.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
	// RememberLast uses the code stored in Textfile for hysteresis when the
	// scheduler passes no previous code.
	RememberLast bool `yaml:"remember_last"`
}

// PublishConfig configures the optional Kafka report publisher.
type PublishConfig struct {
	Brokers []string      `yaml:"brokers" validate:"dive,hostname_port"`
	Topic   string        `yaml:"topic" validate:"required_with=Brokers"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

// Enabled reports whether reports should be published.
func (p PublishConfig) Enabled() bool { return len(p.Brokers) > 0 && p.Topic != "" }

// Load builds the configuration: defaults, then the YAML file at path (when
// path is non-empty), then QUEUEPROBE_* environment overrides, then
// validation.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config with every default applied.
func Default() *Config {
	return &Config{
		Probe: ProbeConfig{
			Timeout:        wire.DefaultTimeout,
			LoginProgram:   wire.DefaultProgram,
			ClientNode:     wire.DefaultClientNode,
			ClientSession:  wire.DefaultClientSession,
			TestQueue:      diag.DefaultTestQueue,
			QueueClass:     diag.DefaultQueueClass,
			AffinityPrefix: diag.DefaultAffinityPrefix,
			PeerWindow:     coord.DefaultWindow,
			StartJitter:    diag.DefaultStartJitter,
		},
		Limits: LimitsConfig{
			MemoryPercent: resources.DefaultMemoryPercent,
			FDReserve:     resources.DefaultFDReserve,
		},
		Scoring: ScoringConfig{
			Curve:           append([]int(nil), compute.DefaultThresholds...),
			DefaultPrevious: compute.DefaultPrevious,
		},
		Versions: VersionsConfig{
			ClientData: diag.DefaultClientDataVersion,
			Health:     diag.DefaultHealthVersion,
		},
		Publish: PublishConfig{
			Timeout: shipper.DefaultTimeout,
		},
	}
}

// Diag converts the configuration into the runner's settings.
func (c *Config) Diag() (diag.Config, error) {
	curve, err := compute.NewCurve(c.Scoring.DefaultPrevious, c.Scoring.Curve...)
	if err != nil {
		return diag.Config{}, fmt.Errorf("config: scoring.curve: %w", err)
	}
	return diag.Config{
		Conn: wire.Options{
			Timeout:       c.Probe.Timeout,
			Program:       c.Probe.LoginProgram,
			ClientNode:    c.Probe.ClientNode,
			ClientSession: c.Probe.ClientSession,
		},
		TestQueue:         c.Probe.TestQueue,
		QueueClass:        c.Probe.QueueClass,
		AffinityPrefix:    c.Probe.AffinityPrefix,
		PeerWindow:        c.Probe.PeerWindow,
		StartJitter:       c.Probe.StartJitter,
		ClientDataVersion: c.Versions.ClientData,
		HealthVersion:     c.Versions.Health,
		Limits: resources.Limits{
			MemoryPercent: c.Limits.MemoryPercent,
			FDReserve:     c.Limits.FDReserve,
		},
		Curve: curve,
	}, nil
}
