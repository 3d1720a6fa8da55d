// Package config loads the probe configuration.
//
// Sources are applied in order: built-in defaults, the optional YAML file,
// then QUEUEPROBE_* environment variables (which a dotenv file may seed).
// The result is validated before use.
package config
