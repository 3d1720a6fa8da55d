package compute

import (
	"testing"
	"time"
)

func TestAdjust(t *testing.T) {
	tests := []struct {
		code   int
		legacy bool
		want   int
	}{
		{100, true, 200},
		{105, true, 205},
		{110, true, 210},
		{111, true, 111},
		{99, true, 99},
		{216, true, 216},
		{105, false, 105},
	}
	for _, tc := range tests {
		if got := Adjust(tc.code, tc.legacy); got != tc.want {
			t.Errorf("Adjust(%d, %v) = %d, want %d", tc.code, tc.legacy, got, tc.want)
		}
	}
}

func TestFinalize(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		last    int
		hasLast bool
		want    int
	}{
		{"same as last", 42, 42, true, NoChange},
		{"same failure as last", CodeProtocol, CodeProtocol, true, NoChange},
		{"changed", 42, 41, true, 42},
		{"no last known", 42, 0, false, 42},
		{"zero score with no last", 0, 0, false, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Finalize(tc.code, tc.last, tc.hasLast); got != tc.want {
				t.Errorf("Finalize() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestCodeBands(t *testing.T) {
	if CodeConnectionLost >= BaseDown {
		t.Errorf("reserved failure %d overlaps the down code", CodeConnectionLost)
	}
	if CodeUnknown != 220 || CodeInterrupted != 218 || CodeAccessDenied != 216 {
		t.Error("no-action offsets moved")
	}
	if MaxPenalty >= BaseReserve {
		t.Error("graded scores overlap the reserved band")
	}
}

func TestScorer(t *testing.T) {
	s := NewScorer(DefaultCurve())

	got := s.Score(350*time.Millisecond, 80, true)
	if got.Raw != 84 || got.Value != 84 || got.Smoothed() {
		t.Errorf("Score(350ms, 80) = %+v", got)
	}

	got = s.Score(time.Second, 80, true)
	if got.Raw != 99 || got.Value != 90 || !got.Smoothed() {
		t.Errorf("Score(1s, 80) = %+v, want raw 99 value 90", got)
	}

	if code := s.Smooth(CodeTimeout, 10, true); code != CodeTimeout {
		t.Errorf("Smooth(104) = %d", code)
	}
}
