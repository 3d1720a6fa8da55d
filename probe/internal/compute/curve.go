package compute

import (
	"fmt"
	"slices"
)

// DefaultPrevious is assumed as the previous result when the caller does not
// know one. It sits above every graded score, so a first run always improves.
const DefaultPrevious = BaseReserve

// DefaultThresholds are the alerting bands the external monitor cares about.
var DefaultThresholds = []int{90, 99}

// Curve holds the hysteresis thresholds. A reported score moves at most to the
// nearest threshold it crosses per run, so one noisy measurement cannot jump
// several alerting bands at once.
type Curve struct {
	thresholds      []int
	defaultPrevious int
}

// NewCurve validates and sorts the thresholds. Every threshold must be a
// graded score (0..99).
func NewCurve(defaultPrevious int, thresholds ...int) (Curve, error) {
	ts := slices.Clone(thresholds)
	slices.Sort(ts)
	ts = slices.Compact(ts)
	for _, t := range ts {
		if t < 0 || t > MaxPenalty {
			return Curve{}, fmt.Errorf("compute: curve threshold %d outside 0..%d", t, MaxPenalty)
		}
	}
	if defaultPrevious < 0 {
		return Curve{}, fmt.Errorf("compute: default previous %d must not be negative", defaultPrevious)
	}
	return Curve{thresholds: ts, defaultPrevious: defaultPrevious}, nil
}

// DefaultCurve returns the {90, 99} curve with DefaultPrevious.
func DefaultCurve() Curve {
	c, _ := NewCurve(DefaultPrevious, DefaultThresholds...)
	return c
}

// Thresholds returns a copy of the sorted thresholds.
func (c Curve) Thresholds() []int { return slices.Clone(c.thresholds) }

// Pick smooths current against the previously reported value.
//
// Error codes (>= 100) and unchanged values pass through. Otherwise the
// thresholds strictly between last and current are collected; with none the
// current value is reported, when improving the highest crossed threshold,
// when worsening the lowest.
func (c Curve) Pick(last int, hasLast bool, current int) int {
	if !hasLast {
		last = c.defaultPrevious
	}
	if last == current || current >= BaseReserve {
		return current
	}

	lo, hi := min(last, current), max(last, current)
	var crossed []int
	for _, t := range c.thresholds {
		if t > lo && t < hi {
			crossed = append(crossed, t)
		}
	}
	if len(crossed) == 0 {
		return current
	}
	if current < last {
		return crossed[len(crossed)-1]
	}
	return crossed[0]
}
