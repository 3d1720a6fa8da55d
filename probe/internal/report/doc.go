// Package report carries the two output channels of a probe run: the
// optional debug trace (Tracer) and the stderr alert lines read by the
// scheduler (Alerter).
package report
