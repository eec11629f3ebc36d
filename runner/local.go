package runner

import (
	"context"

	"github.com/hupe1980/runmesh/agent"
	"github.com/hupe1980/runmesh/core"
)

// LocalBackend executes jobs synchronously inside SubmitJob.
type LocalBackend struct {
	jobs *jobTable
}

// NewLocal creates a synchronous backend. exec should append its events
// through a StatusLog over the same state.
func NewLocal(state core.RunState, exec Executor, optFns ...func(o *Options)) *LocalBackend {
	return &LocalBackend{jobs: newJobTable(state, exec, optFns)}
}

// SubmitJob runs the job to completion and finalizes it. A job canceled before
// submission is finalized as canceled with reason pre_start and never executed.
// The loop's fatal run error, if any, is returned after the run was marked failed.
func (b *LocalBackend) SubmitJob(ctx context.Context, job core.RunnerJob) error {
	entry := &jobEntry{job: job, stop: agent.NewStopController()}

	run, preStart := b.jobs.admit(job, entry)
	if preStart {
		defer b.jobs.finalize(job)
		_, err := b.jobs.markCanceled(job, ReasonPreStart)
		return err
	}
	if !run {
		return nil
	}

	defer b.jobs.finalize(job)

	return b.jobs.execute(ctx, job, entry)
}

// CancelJob cancels a job. Canceling a completed job is a no-op; canceling a
// job that was not submitted yet makes its later submission short-circuit.
func (b *LocalBackend) CancelJob(_ context.Context, jobID string) error {
	entry, inFlight := b.jobs.requestCancel(jobID)
	if !inFlight {
		return nil
	}

	entry.stop.RequestStop()

	canceled, err := b.jobs.markCanceled(entry.job, ReasonRequested)
	if err != nil {
		return err
	}
	if canceled {
		b.jobs.finalize(entry.job)
	}

	return nil
}

var _ core.RunnerBackend = (*LocalBackend)(nil)
