package coord

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/obsidianstack/queueprobe/probe/internal/wire"
)

// fakeExec returns scripted STAT CLIENTS replies in order and records every
// single-line command.
type fakeExec struct {
	stats   [][]string
	statErr error
	reads   int
	sent    []string
	execErr error
}

func (f *fakeExec) ExecuteLines(_ context.Context, cmd wire.Command) ([]string, error) {
	if cmd.String() != "STAT CLIENTS" {
		return nil, errors.New("unexpected multi-line command " + cmd.String())
	}
	if f.statErr != nil {
		return nil, f.statErr
	}
	i := min(f.reads, len(f.stats)-1)
	f.reads++
	return f.stats[i], nil
}

func (f *fakeExec) Execute(_ context.Context, cmd wire.Command) (string, error) {
	if err := cmd.Err(); err != nil {
		return "", err
	}
	f.sent = append(f.sent, cmd.String())
	return "", f.execErr
}

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local)

func clientsWith(data string) []string {
	return []string{
		"CLIENT: 'grid_worker_17'",
		"  DATA: 'DONE 2024-05-01 11:59:59.900000 3'",
		"CLIENT: 'health_check'",
		"  STATUS: active",
		"  DATA: '" + data + "'",
		"CLIENT: 'submitter'",
	}
}

func stamp(age time.Duration) string {
	return base.Add(-age).Format(formatLayout)
}

type sleepRecorder struct{ slept []time.Duration }

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.slept = append(s.slept, d)
	return nil
}

func newTestCoordinator(exec Executor, sl *sleepRecorder) *Coordinator {
	return New(exec, Options{
		Window: time.Second,
		Now:    func() time.Time { return base },
		Sleep:  sl.sleep,
	})
}

func TestReuse(t *testing.T) {
	tests := []struct {
		name      string
		stats     [][]string
		wantValue int
		wantOK    bool
		wantReads int
		wantSleep bool
	}{
		{
			name:      "fresh done is reused",
			stats:     [][]string{clientsWith("DONE " + stamp(300*time.Millisecond) + " 42")},
			wantValue: 42, wantOK: true, wantReads: 1,
		},
		{
			name:      "stale done is ignored",
			stats:     [][]string{clientsWith("DONE " + stamp(3*time.Second) + " 42")},
			wantReads: 1,
		},
		{
			name:      "done without value is ignored",
			stats:     [][]string{clientsWith("DONE " + stamp(100*time.Millisecond))},
			wantReads: 1,
		},
		{
			name: "fresh start then done after waiting",
			stats: [][]string{
				clientsWith("START " + stamp(200*time.Millisecond)),
				clientsWith("DONE " + stamp(0) + " 17"),
			},
			wantValue: 17, wantOK: true, wantReads: 2, wantSleep: true,
		},
		{
			name: "fresh start still running after waiting",
			stats: [][]string{
				clientsWith("START " + stamp(200*time.Millisecond)),
				clientsWith("START " + stamp(200*time.Millisecond)),
			},
			wantReads: 2, wantSleep: true,
		},
		{
			name:      "stale start",
			stats:     [][]string{clientsWith("START " + stamp(2*time.Second))},
			wantReads: 1,
		},
		{
			name:      "malformed record is absent",
			stats:     [][]string{clientsWith("DONE garbage")},
			wantReads: 1,
		},
		{
			name:      "empty record",
			stats:     [][]string{clientsWith("")},
			wantReads: 1,
		},
		{
			name:      "node not listed",
			stats:     [][]string{{"CLIENT: 'other'", "DATA: 'DONE " + stamp(0) + " 5'"}},
			wantReads: 1,
		},
		{
			name:      "data of the next client is not ours",
			stats:     [][]string{{"CLIENT: 'health_check'", "STATUS: active", "CLIENT: 'other'", "DATA: 'DONE " + stamp(0) + " 5'"}},
			wantReads: 1,
		},
		{
			name:      "empty client list",
			stats:     [][]string{{}},
			wantReads: 1,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			exec := &fakeExec{stats: tc.stats}
			sl := &sleepRecorder{}
			c := newTestCoordinator(exec, sl)

			value, ok, err := c.Reuse(context.Background())
			if err != nil {
				t.Fatalf("Reuse() error = %v", err)
			}
			if ok != tc.wantOK || value != tc.wantValue {
				t.Errorf("Reuse() = %d, %v; want %d, %v", value, ok, tc.wantValue, tc.wantOK)
			}
			if exec.reads != tc.wantReads {
				t.Errorf("STAT CLIENTS reads = %d, want %d", exec.reads, tc.wantReads)
			}
			if tc.wantSleep != (len(sl.slept) == 1) {
				t.Errorf("slept = %v, want one sleep: %v", sl.slept, tc.wantSleep)
			}
			if tc.wantSleep && sl.slept[0] != time.Second {
				t.Errorf("slept %v, want the window", sl.slept[0])
			}
		})
	}
}

func TestReuse_ReadErrorPropagates(t *testing.T) {
	exec := &fakeExec{statErr: wire.ErrTimeout}
	_, _, err := newTestCoordinator(exec, &sleepRecorder{}).Reuse(context.Background())
	if !errors.Is(err, wire.ErrTimeout) {
		t.Fatalf("Reuse() error = %v, want ErrTimeout", err)
	}
}

func TestReuse_CancelledWhileWaiting(t *testing.T) {
	exec := &fakeExec{stats: [][]string{clientsWith("START " + stamp(0))}}
	c := New(exec, Options{Now: func() time.Time { return base }})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok, err := c.Reuse(ctx)
	if ok || !errors.Is(err, context.Canceled) {
		t.Fatalf("Reuse() = %v, %v; want context.Canceled", ok, err)
	}
}

func TestMarkStartAndDone(t *testing.T) {
	exec := &fakeExec{}
	c := newTestCoordinator(exec, &sleepRecorder{})

	if err := c.MarkStart(context.Background()); err != nil {
		t.Fatalf("MarkStart() error = %v", err)
	}
	if err := c.MarkDone(context.Background(), 42); err != nil {
		t.Fatalf("MarkDone() error = %v", err)
	}

	want := []string{
		`SETCLIENTDATA data="START 2024-05-01 12:00:00.000000" version=-1`,
		`SETCLIENTDATA data="DONE 2024-05-01 12:00:00.000000 42" version=-1`,
	}
	if len(exec.sent) != len(want) {
		t.Fatalf("sent = %q, want %q", exec.sent, want)
	}
	for i := range want {
		if exec.sent[i] != want[i] {
			t.Errorf("sent[%d] = %q, want %q", i, exec.sent[i], want[i])
		}
	}
}

func TestMarkDone_ErrorReturned(t *testing.T) {
	exec := &fakeExec{execErr: wire.ErrConnection}
	err := newTestCoordinator(exec, &sleepRecorder{}).MarkDone(context.Background(), 1)
	if !errors.Is(err, wire.ErrConnection) {
		t.Fatalf("MarkDone() error = %v, want ErrConnection", err)
	}
}

func TestSleep(t *testing.T) {
	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Errorf("Sleep() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Sleep() on cancelled context = %v", err)
	}
}
