package compute

import "time"

// Breakpoints of the latency penalty curve, in milliseconds.
const (
	penaltyFreeMs  = 20  // at or below: no penalty
	penaltyKneeMs  = 200 // first segment ends here at penaltyKnee
	penaltyMaxMs   = 500 // at or above: MaxPenalty
	penaltyKnee    = 70
	MaxPenalty     = 99
	kneeSlopeDenom = 179 // (200 - 21)
	tailSlopeDenom = 299 // (500 - 201)
)

// Penalty converts the elapsed time of the job lifecycle into a graded score
// in 0..99. The elapsed time is truncated to whole milliseconds.
//
//	ms <= 20       → 0
//	21..200        → (ms-20)*70/179
//	201..499       → (ms-200)*29/299 + 70
//	ms >= 500      → 99
func Penalty(elapsed time.Duration) int {
	ms := int(elapsed / time.Millisecond)
	switch {
	case ms <= penaltyFreeMs:
		return 0
	case ms >= penaltyMaxMs:
		return MaxPenalty
	case ms <= penaltyKneeMs:
		return (ms - penaltyFreeMs) * penaltyKnee / kneeSlopeDenom
	default:
		return (ms-penaltyKneeMs)*(MaxPenalty-penaltyKnee)/tailSlopeDenom + penaltyKnee
	}
}
