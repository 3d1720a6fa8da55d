package compute

// Bases of the exit code bands.
const (
	BaseReserve  = 100 // reserved: draining or failed in a way that keeps the server in rotation
	BaseDown     = 111
	NoChange     = 123 // same as the previous result, nothing to report
	BaseStandby  = 200
	BaseNoAction = 211
)

// Exit codes. Graded scores occupy 0..99.
const (
	CodeDraining         = BaseReserve     // 100
	CodeConnectTimeout   = BaseReserve + 1 // 101
	CodeConnectFailed    = BaseReserve + 2 // 102
	CodeConnectUnknown   = BaseReserve + 3 // 103
	CodeTimeout          = BaseReserve + 4 // 104
	CodeProtocol         = BaseReserve + 5 // 105
	CodeServerError      = BaseReserve + 6 // 106
	CodeResourceExceeded = BaseReserve + 7 // 107
	CodeConnectionLost   = BaseReserve + 8 // 108

	CodeDown = BaseDown // 111

	CodeBadArgCount    = BaseNoAction     // 211
	CodeBadAddress     = BaseNoAction + 1 // 212
	CodeBadArgs        = BaseNoAction + 2 // 213
	CodeNoQueueClass   = BaseNoAction + 3 // 214
	CodeRefusesSubmits = BaseNoAction + 4 // 215
	CodeAccessDenied   = BaseNoAction + 5 // 216
	CodeFailure        = BaseNoAction + 6 // 217
	CodeInterrupted    = BaseNoAction + 7 // 218
	CodeInternal       = BaseNoAction + 8 // 219
	CodeUnknown        = BaseNoAction + 9 // 220
)

// legacyReserveTop is the last code remapped by Adjust in legacy mode.
const legacyReserveTop = BaseReserve + 10

// Adjust applies the legacy standby remapping: older balancer clients only
// understand the 200 band, so 100..110 become 200..210.
func Adjust(code int, legacy bool) int {
	if legacy && code >= BaseReserve && code <= legacyReserveTop {
		return code - BaseReserve + BaseStandby
	}
	return code
}

// Finalize returns NoChange when the previous code is known and equal to code.
// code must already be adjusted.
func Finalize(code, last int, hasLast bool) int {
	if hasLast && code == last {
		return NoChange
	}
	return code
}
