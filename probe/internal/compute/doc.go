// Package compute turns probe outcomes into exit codes.
//
// penalty.go maps the elapsed job lifecycle time onto a piecewise-linear
// score (0–99). curve.go applies hysteresis against the previously reported
// value: the score only moves as far as the nearest alerting threshold it
// crosses. codes.go holds the exit code taxonomy, the legacy standby remap
// and the "unchanged" (123) rule.
package compute
