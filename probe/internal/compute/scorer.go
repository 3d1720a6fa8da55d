package compute

import "time"

// Score is the outcome of scoring one measured lifecycle run.
type Score struct {
	Elapsed time.Duration
	Raw     int // Penalty(Elapsed)
	Value   int // Raw after hysteresis
}

// Smoothed reports whether hysteresis changed the raw penalty.
func (s Score) Smoothed() bool { return s.Raw != s.Value }

// Scorer turns lifecycle latency into the reported score.
type Scorer struct {
	Curve Curve
}

// NewScorer returns a Scorer using curve.
func NewScorer(curve Curve) *Scorer {
	return &Scorer{Curve: curve}
}

// Score computes the raw penalty for elapsed and smooths it against previous.
func (s *Scorer) Score(elapsed time.Duration, previous int, hasPrevious bool) Score {
	raw := Penalty(elapsed)
	return Score{
		Elapsed: elapsed,
		Raw:     raw,
		Value:   s.Curve.Pick(previous, hasPrevious, raw),
	}
}

// Smooth applies hysteresis to a code that was not produced by Score, such
// as a connectivity failure. Codes >= 100 pass through unchanged.
func (s *Scorer) Smooth(code, previous int, hasPrevious bool) int {
	return s.Curve.Pick(previous, hasPrevious, code)
}
