package compute

import "testing"

func TestPick(t *testing.T) {
	c := DefaultCurve()
	tests := []struct {
		name    string
		last    int
		hasLast bool
		current int
		want    int
	}{
		{"worsening across 90", 80, true, 95, 90},
		{"improving across 90", 95, true, 80, 90},
		{"unchanged", 42, true, 42, 42},
		{"no threshold between", 10, true, 60, 60},
		{"threshold equal to current is not crossed", 80, true, 90, 90},
		{"worsening across both picks lowest", 50, true, 99, 90},
		{"improving from reserve across both picks highest", 100, true, 50, 99},
		{"unknown last defaults to 100", 0, false, 12, 99},
		{"unknown last, current above every threshold", 0, false, 99, 99},
		{"error code passes through", 42, true, 105, 105},
		{"error code with unknown last", 0, false, 111, 111},
		{"recovery from error band", 217, true, 5, 99},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.Pick(tc.last, tc.hasLast, tc.current); got != tc.want {
				t.Errorf("Pick(%d, %v, %d) = %d, want %d", tc.last, tc.hasLast, tc.current, got, tc.want)
			}
		})
	}
}

func TestPick_IdentityAndErrorBand(t *testing.T) {
	c := DefaultCurve()
	for p := 0; p <= 230; p++ {
		if got := c.Pick(p, true, p); got != p {
			t.Fatalf("Pick(%d, %d) = %d", p, p, got)
		}
		for _, code := range []int{100, 105, 111, 123, 217} {
			if got := c.Pick(p, true, code); got != code {
				t.Fatalf("Pick(%d, %d) = %d, want unchanged", p, code, got)
			}
		}
	}
}

func TestNewCurve(t *testing.T) {
	c, err := NewCurve(100, 99, 50, 90, 50)
	if err != nil {
		t.Fatalf("NewCurve() error = %v", err)
	}
	got := c.Thresholds()
	want := []int{50, 90, 99}
	if len(got) != len(want) {
		t.Fatalf("thresholds = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("thresholds = %v, want %v", got, want)
		}
	}

	if _, err := NewCurve(100, 90, 100); err == nil {
		t.Error("expected error for threshold 100")
	}
	if _, err := NewCurve(-1, 90); err == nil {
		t.Error("expected error for negative default previous")
	}
}

func TestPick_CustomDefaultPrevious(t *testing.T) {
	c, err := NewCurve(0, 90, 99)
	if err != nil {
		t.Fatal(err)
	}
	// Starting from 0 a bad first result only reaches the lowest threshold.
	if got := c.Pick(0, false, 99); got != 90 {
		t.Errorf("Pick = %d, want 90", got)
	}
}
