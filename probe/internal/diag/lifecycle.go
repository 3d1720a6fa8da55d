package diag

import (
	"context"
	"log/slog"

	"github.com/obsidianstack/queueprobe/probe/internal/wire"
)

// Job states and fixed lifecycle arguments.
const (
	statusPending = "Pending"
	statusRunning = "Running"
	statusDone    = "Done"

	jobInput  = "NoInput"
	jobOutput = "NoOutput"
)

// Executor is the single-line half of *wire.Conn.
type Executor interface {
	Execute(ctx context.Context, cmd wire.Command) (string, error)
}

// runLifecycle walks one job through submit, fetch and completion and checks
// the status the server reports after every step. Any deviation ends the run.
func runLifecycle(ctx context.Context, exec Executor, affinity string, log *slog.Logger) error {
	log.Debug("diag: submitting a job", "affinity", affinity)
	key, err := exec.Execute(ctx, wire.Submit(jobInput, affinity))
	if err != nil {
		return err
	}
	if key == "" {
		return wire.Unexpectedf("SUBMIT reply carries no job key")
	}

	if err := expectStatus(ctx, exec, wire.WaitStatus(key), statusPending, "after submitting a job", log); err != nil {
		return err
	}

	log.Debug("diag: getting the job")
	payload, err := exec.Execute(ctx, wire.Get(affinity))
	if err != nil {
		return err
	}
	v := wire.ParseValues(payload)
	jobKey, ok := v.Get("job_key")
	if !ok {
		return mismatchf("Could not get submitted job")
	}
	token, ok := v.Get("auth_token")
	if !ok {
		return wire.Unexpectedf("GET2 reply carries no auth_token")
	}

	if err := expectStatus(ctx, exec, wire.WaitStatus(jobKey), statusRunning, "after getting it for execution", log); err != nil {
		return err
	}

	log.Debug("diag: putting job results", "job_key", jobKey)
	if _, err := exec.Execute(ctx, wire.Put(jobKey, token, 0, jobOutput)); err != nil {
		return err
	}

	if err := expectStatus(ctx, exec, wire.WaitStatus(jobKey), statusDone, "after putting job results", log); err != nil {
		return err
	}
	return expectStatus(ctx, exec, wire.SubmitterStatus(jobKey), statusDone, "after putting job results", log)
}

func expectStatus(ctx context.Context, exec Executor, cmd wire.Command, want, when string, log *slog.Logger) error {
	log.Debug("diag: getting job status", "cmd", cmd.String())
	payload, err := exec.Execute(ctx, cmd)
	if err != nil {
		return err
	}
	got, ok := wire.ParseValues(payload).Get("job_status")
	if !ok {
		return wire.Unexpectedf("job_status is missing in the reply to %s", cmd)
	}
	if got != want {
		return mismatchf("Unexpected job status %s. Expected: %s Received: %s", when, want, got)
	}
	return nil
}
