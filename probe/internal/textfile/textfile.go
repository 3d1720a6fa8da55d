package textfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/obsidianstack/queueprobe/pkg/types"
)

// Metric names written for every (service, endpoint) pair.
const (
	MetricResultCode = "queueprobe_result_code"
	MetricLifecycle  = "queueprobe_lifecycle_seconds"
	MetricPeerReused = "queueprobe_peer_reused"
	MetricLastRun    = "queueprobe_last_run_timestamp_seconds"
)

const (
	labelEndpoint = "endpoint"
	labelService  = "service"
)

var help = map[string]string{
	MetricResultCode: "Result code of the last queue health check before the unchanged rule.",
	MetricLifecycle:  "Duration of the last measured job lifecycle in seconds.",
	MetricPeerReused: "1 when the last result was reused from a concurrent probe.",
	MetricLastRun:    "Unix time the last queue health check started.",
}

// Write records r in the exposition file at path for the node exporter's
// textfile collector. Series of other services or endpoints already in the
// file are kept. The file is replaced atomically.
func Write(path string, r types.Report) error {
	mfs, err := readFamilies(path)
	if err != nil {
		// A corrupt file is rewritten from scratch.
		mfs = map[string]*dto.MetricFamily{}
	}
	keepOwn(mfs)

	values := map[string]float64{
		MetricResultCode: float64(r.ResultCode),
		MetricLifecycle:  r.LifecycleSeconds,
		MetricPeerReused: boolValue(r.PeerReused()),
		MetricLastRun:    float64(r.StartedAt.UnixMilli()) / 1000,
	}
	for name, v := range values {
		mf := mfs[name]
		if mf == nil {
			mf = &dto.MetricFamily{
				Name: ptr(name),
				Help: ptr(help[name]),
				Type: dto.MetricType_GAUGE.Enum(),
			}
			mfs[name] = mf
		}
		mf.Metric = append(dropSeries(mf.Metric, r.Service, r.Endpoint), &dto.Metric{
			Label: []*dto.LabelPair{
				{Name: ptr(labelEndpoint), Value: ptr(r.Endpoint)},
				{Name: ptr(labelService), Value: ptr(r.Service)},
			},
			Gauge: &dto.Gauge{Value: ptr(v)},
		})
	}

	var buf bytes.Buffer
	names := make([]string, 0, len(mfs))
	for name := range mfs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := expfmt.MetricFamilyToText(&buf, mfs[name]); err != nil {
			return fmt.Errorf("textfile: encode %s: %w", name, err)
		}
	}
	return writeAtomic(path, buf.Bytes())
}

// ReadLastCode returns the result code stored for service and endpoint.
// A missing file or series is reported as ok=false without error.
func ReadLastCode(path, service, endpoint string) (code int, ok bool, err error) {
	mfs, err := readFamilies(path)
	if err != nil {
		return 0, false, err
	}
	for _, m := range mfs[MetricResultCode].GetMetric() {
		if matches(m, service, endpoint) && m.Gauge != nil {
			return int(m.Gauge.GetValue()), true, nil
		}
	}
	return 0, false, nil
}

// readFamilies parses the exposition at path. A missing file yields an empty
// set.
func readFamilies(path string) (map[string]*dto.MetricFamily, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]*dto.MetricFamily{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("textfile: open: %w", err)
	}
	defer f.Close()
	return parseMetrics(f)
}

// parseMetrics decodes a text exposition. Any parse error makes the whole
// file corrupt, even when some families were decoded before it.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil {
		return nil, fmt.Errorf("textfile: parse: %w", err)
	}
	if mfs == nil {
		mfs = map[string]*dto.MetricFamily{}
	}
	return mfs, nil
}

// keepOwn removes families this package did not write.
func keepOwn(mfs map[string]*dto.MetricFamily) {
	for name, mf := range mfs {
		if _, ours := help[name]; !ours || mf.GetType() != dto.MetricType_GAUGE {
			delete(mfs, name)
			continue
		}
		kept := mf.Metric[:0]
		for _, m := range mf.Metric {
			if m.Gauge != nil {
				kept = append(kept, m)
			}
		}
		mf.Metric = kept
	}
}

func dropSeries(ms []*dto.Metric, service, endpoint string) []*dto.Metric {
	out := ms[:0]
	for _, m := range ms {
		if !matches(m, service, endpoint) {
			out = append(out, m)
		}
	}
	return out
}

func matches(m *dto.Metric, service, endpoint string) bool {
	var svc, ep string
	for _, lp := range m.GetLabel() {
		switch lp.GetName() {
		case labelService:
			svc = lp.GetValue()
		case labelEndpoint:
			ep = lp.GetValue()
		}
	}
	return svc == service && ep == endpoint
}

// writeAtomic writes data next to path and renames it into place so the
// collector never reads a half-written file.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".queueprobe-*.prom.tmp")
	if err != nil {
		return fmt.Errorf("textfile: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("textfile: write: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("textfile: chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("textfile: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("textfile: rename: %w", err)
	}
	return nil
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func ptr[T any](v T) *T { return &v }
