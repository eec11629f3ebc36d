package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/runmesh/agent"
	"github.com/hupe1980/runmesh/core"
	"github.com/hupe1980/runmesh/logging"
)

// Cancellation reasons recorded in run_canceled payloads.
const (
	ReasonPreStart  = "pre_start"
	ReasonRequested = "requested"
)

// Executor runs one agent run to completion. *agent.Loop implements it.
type Executor interface {
	Run(ctx context.Context, in agent.Input, stop *agent.StopController) (agent.Result, error)
}

// sessionSource is implemented by state stores that can resolve a session's repo.
type sessionSource interface {
	GetSession(sessionID string) (core.Session, error)
}

// Options configures a backend.
type Options struct {
	Logger logging.Logger
	// OnFinalize is called once per finalized job.
	OnFinalize func(job core.RunnerJob)
}

// jobTable is the bookkeeping shared by both backends. All maps are keyed by job id.
type jobTable struct {
	mu              sync.Mutex
	cancelRequested map[string]struct{}
	submitted       map[string]*jobEntry
	completed       map[string]struct{}

	state  core.RunState
	exec   Executor
	opts   Options
	logger logging.Logger
}

type jobEntry struct {
	job    core.RunnerJob
	stop   *agent.StopController
	cancel context.CancelFunc
}

func newJobTable(state core.RunState, exec Executor, optFns []func(o *Options)) *jobTable {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	return &jobTable{
		cancelRequested: make(map[string]struct{}),
		submitted:       make(map[string]*jobEntry),
		completed:       make(map[string]struct{}),
		state:           state,
		exec:            exec,
		opts:            opts,
		logger:          opts.Logger,
	}
}

// admit registers job as submitted. It reports false when the job must not
// run: already completed, or canceled before it started.
func (t *jobTable) admit(job core.RunnerJob, entry *jobEntry) (run bool, preStart bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, done := t.completed[job.JobID]; done {
		return false, false
	}
	if _, canceled := t.cancelRequested[job.JobID]; canceled {
		return false, true
	}

	t.submitted[job.JobID] = entry
	return true, false
}

// requestCancel records a cancel request and returns the in-flight entry, if any.
func (t *jobTable) requestCancel(jobID string) (*jobEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, done := t.completed[jobID]; done {
		return nil, false
	}
	t.cancelRequested[jobID] = struct{}{}

	entry, ok := t.submitted[jobID]
	return entry, ok
}

// finalize releases the job exactly once.
func (t *jobTable) finalize(job core.RunnerJob) {
	t.mu.Lock()
	if _, done := t.completed[job.JobID]; done {
		t.mu.Unlock()
		return
	}
	t.completed[job.JobID] = struct{}{}
	delete(t.submitted, job.JobID)
	delete(t.cancelRequested, job.JobID)
	t.mu.Unlock()

	t.state.MarkRunComplete(job.RunID)
	t.logger.Debug("Job finalized", "job_id", job.JobID, "run_id", job.RunID)

	if t.opts.OnFinalize != nil {
		t.opts.OnFinalize(job)
	}
}

// markCanceled moves the job's run to canceled. It reports false when the run
// had already reached a terminal status.
func (t *jobTable) markCanceled(job core.RunnerJob, reason string) (bool, error) {
	ev := core.NewEvent(core.EventRunCanceled, job.SessionID, job.RunID, map[string]any{
		"job_id": job.JobID,
		"reason": reason,
	})

	if _, err := t.state.UpdateRunStatus(job.RunID, core.RunStatusCanceled, ev); err != nil {
		if errors.Is(err, core.ErrRunTerminal) {
			return false, nil
		}
		return false, fmt.Errorf("cancel run %s: %w", job.RunID, err)
	}

	t.logger.Info("Run canceled", "run_id", job.RunID, "job_id", job.JobID, "reason", reason)

	return true, nil
}

func (t *jobTable) input(job core.RunnerJob) (agent.Input, error) {
	run, err := t.state.GetRun(job.RunID)
	if err != nil {
		return agent.Input{}, err
	}

	in := agent.Input{SessionID: run.SessionID, RunID: run.ID, Prompt: run.Prompt}
	if src, ok := t.state.(sessionSource); ok {
		if sess, err := src.GetSession(run.SessionID); err == nil {
			in.RepoID = sess.RepoID
		}
	}

	return in, nil
}

// execute runs the loop and makes sure the run ends in a terminal status.
func (t *jobTable) execute(ctx context.Context, job core.RunnerJob, entry *jobEntry) error {
	in, err := t.input(job)
	if err != nil {
		return err
	}

	logger := logging.ForRun(t.logger, job.SessionID, job.RunID)

	res, runErr := t.exec.Run(ctx, in, entry.stop)
	if runErr != nil {
		logger.Error("Run failed", "job_id", job.JobID, "error", runErr)
	} else {
		logger.Info("Run completed", "job_id", job.JobID, "steps", res.StepsExecuted, "stopped", res.Stopped)
	}

	return errors.Join(runErr, t.settle(job, res, runErr))
}

// settle covers runs whose run_finished event never reached the status log,
// for example because appending it failed.
func (t *jobTable) settle(job core.RunnerJob, res agent.Result, runErr error) error {
	run, err := t.state.GetRun(job.RunID)
	if err != nil || run.Status.IsTerminal() {
		return err
	}

	payload := map[string]any{"stopped": res.Stopped}
	if runErr != nil {
		payload["error"] = runErr.Error()
	}
	ev := core.NewEvent(core.EventRunFinished, job.SessionID, job.RunID, payload)

	if _, err := t.state.UpdateRunStatus(job.RunID, FinishedStatus(ev), ev); err != nil && !errors.Is(err, core.ErrRunTerminal) {
		return err
	}

	return nil
}
