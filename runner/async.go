package runner

import (
	"context"
	"sync"

	"github.com/hupe1980/runmesh/agent"
	"github.com/hupe1980/runmesh/core"
)

// AsyncBackend executes each job on its own goroutine. CancelJob interrupts an
// in-flight run through its stop flag and context; the worker finalizes the
// job when it exits.
type AsyncBackend struct {
	jobs *jobTable
	wg   sync.WaitGroup
}

// NewAsync creates an asynchronous backend.
func NewAsync(state core.RunState, exec Executor, optFns ...func(o *Options)) *AsyncBackend {
	return &AsyncBackend{jobs: newJobTable(state, exec, optFns)}
}

// SubmitJob starts the job and returns immediately. The worker outlives ctx's
// cancellation; use CancelJob to interrupt it.
func (b *AsyncBackend) SubmitJob(ctx context.Context, job core.RunnerJob) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	entry := &jobEntry{job: job, stop: agent.NewStopController(), cancel: cancel}

	run, preStart := b.jobs.admit(job, entry)
	if preStart {
		cancel()
		defer b.jobs.finalize(job)
		_, err := b.jobs.markCanceled(job, ReasonPreStart)
		return err
	}
	if !run {
		cancel()
		return nil
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer cancel()
		defer b.jobs.finalize(job)

		if err := b.jobs.execute(runCtx, job, entry); err != nil {
			b.jobs.logger.Warn("Async job ended with error", "job_id", job.JobID, "error", err)
		}
	}()

	return nil
}

// CancelJob marks an in-flight run canceled and interrupts it. Finalization is
// left to the worker.
func (b *AsyncBackend) CancelJob(_ context.Context, jobID string) error {
	entry, inFlight := b.jobs.requestCancel(jobID)
	if !inFlight {
		return nil
	}

	entry.stop.RequestStop()
	entry.cancel()

	_, err := b.jobs.markCanceled(entry.job, ReasonRequested)

	return err
}

// Wait blocks until every started worker has exited.
func (b *AsyncBackend) Wait() {
	b.wg.Wait()
}

var _ core.RunnerBackend = (*AsyncBackend)(nil)
