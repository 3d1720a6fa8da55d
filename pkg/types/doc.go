// Package types defines the run report shared by the probe's outputs: the
// Prometheus textfile and the JSON event published to Kafka.
package types
