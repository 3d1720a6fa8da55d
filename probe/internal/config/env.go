package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix starts every override variable. The rest of the name is the
// upper-cased YAML path joined by underscores, e.g. QUEUEPROBE_PROBE_TIMEOUT.
const EnvPrefix = "QUEUEPROBE_"

// LoadEnvFile seeds the process environment from a dotenv file. Variables that
// are already set win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: env file %s: %w", path, err)
	}
	return nil
}

type envSetter func(c *Config, v string) error

var envVars = []struct {
	key string
	set envSetter
}{
	{"PROBE_TIMEOUT", durationVar(func(c *Config) *time.Duration { return &c.Probe.Timeout })},
	{"PROBE_LOGIN_PROGRAM", stringVar(func(c *Config) *string { return &c.Probe.LoginProgram })},
	{"PROBE_CLIENT_NODE", stringVar(func(c *Config) *string { return &c.Probe.ClientNode })},
	{"PROBE_CLIENT_SESSION", stringVar(func(c *Config) *string { return &c.Probe.ClientSession })},
	{"PROBE_TEST_QUEUE", stringVar(func(c *Config) *string { return &c.Probe.TestQueue })},
	{"PROBE_QUEUE_CLASS", stringVar(func(c *Config) *string { return &c.Probe.QueueClass })},
	{"PROBE_AFFINITY_PREFIX", stringVar(func(c *Config) *string { return &c.Probe.AffinityPrefix })},
	{"PROBE_PEER_WINDOW", durationVar(func(c *Config) *time.Duration { return &c.Probe.PeerWindow })},
	{"PROBE_START_JITTER", durationVar(func(c *Config) *time.Duration { return &c.Probe.StartJitter })},
	{"PROBE_LEGACY_STANDBY_CODES", boolVar(func(c *Config) *bool { return &c.Probe.LegacyStandbyCodes })},
	{"LIMITS_MEMORY_PERCENT", floatVar(func(c *Config) *float64 { return &c.Limits.MemoryPercent })},
	{"LIMITS_FD_RESERVE", intVar(func(c *Config) *int { return &c.Limits.FDReserve })},
	{"SCORING_CURVE", intListVar(func(c *Config) *[]int { return &c.Scoring.Curve })},
	{"SCORING_DEFAULT_PREVIOUS", intVar(func(c *Config) *int { return &c.Scoring.DefaultPrevious })},
	{"VERSIONS_CLIENT_DATA", stringVar(func(c *Config) *string { return &c.Versions.ClientData })},
	{"VERSIONS_HEALTH", stringVar(func(c *Config) *string { return &c.Versions.Health })},
	{"LOG_FILE", stringVar(func(c *Config) *string { return &c.Log.File })},
	{"METRICS_TEXTFILE", stringVar(func(c *Config) *string { return &c.Metrics.Textfile })},
	{"METRICS_REMEMBER_LAST", boolVar(func(c *Config) *bool { return &c.Metrics.RememberLast })},
	{"PUBLISH_BROKERS", stringListVar(func(c *Config) *[]string { return &c.Publish.Brokers })},
	{"PUBLISH_TOPIC", stringVar(func(c *Config) *string { return &c.Publish.Topic })},
	{"PUBLISH_TIMEOUT", durationVar(func(c *Config) *time.Duration { return &c.Publish.Timeout })},
}

// applyEnv overrides cfg from the variables lookup finds.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for _, ev := range envVars {
		v, ok := lookup(EnvPrefix + ev.key)
		if !ok {
			continue
		}
		if err := ev.set(cfg, strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, ev.key, err)
		}
	}
	return nil
}

func stringVar(field func(*Config) *string) envSetter {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func durationVar(field func(*Config) *time.Duration) envSetter {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}

func boolVar(field func(*Config) *bool) envSetter {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

func intVar(field func(*Config) *int) envSetter {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func floatVar(field func(*Config) *float64) envSetter {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*field(c) = f
		return nil
	}
}

// List variables are comma separated; an empty value clears the list.
func stringListVar(field func(*Config) *[]string) envSetter {
	return func(c *Config, v string) error {
		*field(c) = splitList(v)
		return nil
	}
}

func intListVar(field func(*Config) *[]int) envSetter {
	return func(c *Config, v string) error {
		parts := splitList(v)
		out := make([]int, 0, len(parts))
		for _, p := range parts {
			n, err := strconv.Atoi(p)
			if err != nil {
				return err
			}
			out = append(out, n)
		}
		*field(c) = out
		return nil
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
