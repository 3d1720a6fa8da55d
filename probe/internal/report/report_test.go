package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAlerter(t *testing.T) {
	tests := []struct {
		name      string
		last      int
		hasLast   bool
		legacy    bool
		code      int
		wantPrint bool
	}{
		{"no previous code", 0, false, false, 106, true},
		{"changed", 105, true, false, 106, true},
		{"same as last", 106, true, false, 106, false},
		{"legacy remap matches last", 205, true, true, 105, false},
		{"legacy off, remapped last differs", 205, true, false, 105, true},
		{"previous zero is still a known code", 0, true, false, 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			a := NewAlerter(&buf, tc.last, tc.hasLast, tc.legacy, nil)
			a.now = func() time.Time { return time.Date(2024, 3, 9, 7, 5, 1, 0, time.Local) }

			a.Alert(tc.code, "(service svc) communication timeout")

			if got := buf.Len() > 0; got != tc.wantPrint {
				t.Fatalf("printed = %v, want %v (%q)", got, tc.wantPrint, buf.String())
			}
			if tc.wantPrint {
				want := "03-09-24 07:05:01 Queue health check. (service svc) communication timeout\n"
				if buf.String() != want {
					t.Errorf("line = %q, want %q", buf.String(), want)
				}
				if a.Printed() != 1 {
					t.Errorf("Printed() = %d", a.Printed())
				}
			}
		})
	}
}

func TestTracer_DiscardByDefault(t *testing.T) {
	var out bytes.Buffer
	tr, err := NewTracer(TracerOptions{Stdout: &out})
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	tr.Logger.Debug("diag: connecting")
	if out.Len() != 0 {
		t.Errorf("quiet tracer wrote %q", out.String())
	}
}

func TestTracer_VerboseAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.log")
	if err := os.WriteFile(path, []byte("earlier run\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	tr, err := NewTracer(TracerOptions{Verbose: true, File: path, Stdout: &out})
	if err != nil {
		t.Fatalf("NewTracer() error = %v", err)
	}
	tr.Logger.Debug("diag: checking drained shutdown status", "service", "svc")
	if err := tr.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	if !strings.Contains(out.String(), "diag: checking drained shutdown status") {
		t.Errorf("stdout = %q", out.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "earlier run\n") || !strings.Contains(string(data), "service=svc") {
		t.Errorf("trace file = %q", data)
	}
}

func TestTracer_FileOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.log")
	var out bytes.Buffer
	tr, err := NewTracer(TracerOptions{File: path, Stdout: &out})
	if err != nil {
		t.Fatal(err)
	}
	tr.Logger.Info("probe: done")
	tr.Close()

	if out.Len() != 0 {
		t.Errorf("stdout written without verbose: %q", out.String())
	}
	if data, _ := os.ReadFile(path); !strings.Contains(string(data), "probe: done") {
		t.Errorf("trace file = %q", data)
	}
}

func TestTracer_BadFile(t *testing.T) {
	_, err := NewTracer(TracerOptions{File: filepath.Join(t.TempDir(), "missing", "trace.log")})
	if err == nil {
		t.Fatal("expected error for unwritable trace file")
	}
}
