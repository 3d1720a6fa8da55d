package textfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/obsidianstack/queueprobe/pkg/types"
)

func report(service, endpoint string, code int) types.Report {
	return types.Report{
		Service:          service,
		Endpoint:         endpoint,
		StartedAt:        time.Unix(1700000000, 250_000_000),
		ResultCode:       code,
		Source:           "measured",
		LifecycleSeconds: 0.35,
	}
}

func TestWriteAndReadLastCode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queueprobe.prom")

	if err := Write(path, report("svc", "ns1:9100", 84)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	code, ok, err := ReadLastCode(path, "svc", "ns1:9100")
	if err != nil || !ok || code != 84 {
		t.Fatalf("ReadLastCode() = %d, %v, %v; want 84", code, ok, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{
		`queueprobe_result_code{endpoint="ns1:9100",service="svc"} 84`,
		`queueprobe_lifecycle_seconds{endpoint="ns1:9100",service="svc"} 0.35`,
		`queueprobe_peer_reused{endpoint="ns1:9100",service="svc"} 0`,
		`# TYPE queueprobe_last_run_timestamp_seconds gauge`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("exposition lacks %q:\n%s", want, text)
		}
	}
}

func TestWrite_KeepsOtherSeries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queueprobe.prom")

	steps := []types.Report{
		report("svc_a", "ns1:9100", 10),
		report("svc_b", "ns1:9100", 20),
		report("svc_a", "ns1:9100", 30),
	}
	for _, r := range steps {
		if err := Write(path, r); err != nil {
			t.Fatalf("Write(%s) error = %v", r.Service, err)
		}
	}

	tests := []struct {
		service string
		want    int
	}{
		{"svc_a", 30},
		{"svc_b", 20},
	}
	for _, tc := range tests {
		code, ok, err := ReadLastCode(path, tc.service, "ns1:9100")
		if err != nil || !ok || code != tc.want {
			t.Errorf("ReadLastCode(%s) = %d, %v, %v; want %d", tc.service, code, ok, err, tc.want)
		}
	}

	data, _ := os.ReadFile(path)
	if n := strings.Count(string(data), `queueprobe_result_code{endpoint="ns1:9100",service="svc_a"}`); n != 1 {
		t.Errorf("svc_a series written %d times", n)
	}
}

func TestReadLastCode_Missing(t *testing.T) {
	dir := t.TempDir()

	_, ok, err := ReadLastCode(filepath.Join(dir, "absent.prom"), "svc", "ns1:9100")
	if err != nil || ok {
		t.Errorf("missing file: ok=%v err=%v", ok, err)
	}

	path := filepath.Join(dir, "q.prom")
	if err := Write(path, report("other", "ns1:9100", 5)); err != nil {
		t.Fatal(err)
	}
	_, ok, err = ReadLastCode(path, "svc", "ns1:9100")
	if err != nil || ok {
		t.Errorf("missing series: ok=%v err=%v", ok, err)
	}
}

func TestWrite_ReplacesCorruptFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"non-numeric value", "queueprobe_result_code{service=\"svc\",endpoint=\"ns1:9100\"} notanumber\n"},
		{"garbage line", "garbage line here\n"},
		{"valid family then garbage", "# TYPE queueprobe_result_code gauge\nqueueprobe_result_code{service=\"old\",endpoint=\"ns2:9100\"} 3\nthis is not { valid\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "q.prom")
			if err := os.WriteFile(path, []byte(tc.content), 0o644); err != nil {
				t.Fatal(err)
			}

			if _, _, err := ReadLastCode(path, "svc", "ns1:9100"); err == nil {
				t.Error("ReadLastCode() on a corrupt file: expected error")
			}
			if err := Write(path, report("svc", "ns1:9100", 7)); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			if code, ok, err := ReadLastCode(path, "svc", "ns1:9100"); err != nil || !ok || code != 7 {
				t.Errorf("after rewrite: %d, %v, %v; want 7", code, ok, err)
			}
			// Nothing from the corrupt file survives the rewrite.
			if _, ok, _ := ReadLastCode(path, "old", "ns2:9100"); ok {
				t.Error("series from the corrupt file was kept")
			}
		})
	}
}

func TestReadLastCode_CommentOnlyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.prom")
	if err := os.WriteFile(path, []byte("# TYPE\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// A lone comment is valid exposition text with no series.
	if _, ok, err := ReadLastCode(path, "svc", "ns1:9100"); err != nil || ok {
		t.Errorf("ReadLastCode() = ok %v, err %v; want no series and no error", ok, err)
	}
}

func TestWrite_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	if err := Write(filepath.Join(dir, "q.prom"), report("svc", "ns1:9100", 1)); err != nil {
		t.Fatal(err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("dir holds %d entries, want only the exposition", len(entries))
	}
}
