// Package textfile keeps the probe's last result in a Prometheus text
// exposition file, for the node exporter's textfile collector and as a
// fallback memory of the previous code when the scheduler does not pass one.
package textfile
