package core

import "context"

// RunnerJob is a single dispatch attempt of a Run. JobID is the cancellation handle.
type RunnerJob struct {
	JobID      string `json:"job_id"`
	SessionID  string `json:"session_id"`
	RunID      string `json:"run_id"`
	SnapshotID string `json:"snapshot_id"`
}

// RunnerBackend executes dispatched jobs.
//
// Contract:
//   - SubmitJob consumes one limiter slot that the backend releases exactly
//     once through RunState.MarkRunComplete, whatever the outcome.
//   - CancelJob is idempotent; cancelling a completed job is a no-op.
//   - A cancel request that arrives before SubmitJob must short-circuit the
//     later submission without executing the run.
type RunnerBackend interface {
	SubmitJob(ctx context.Context, job RunnerJob) error
	CancelJob(ctx context.Context, jobID string) error
}

// RunState is the narrow view of control plane state a RunnerBackend needs.
// Implementations must be safe for concurrent use.
type RunState interface {
	// GetRun returns a copy of the run record.
	GetRun(runID string) (Run, error)
	// UpdateRunStatus transitions a run and appends ev atomically with the
	// change. It returns ErrRunTerminal when the run already ended.
	UpdateRunStatus(runID string, status RunStatus, ev Event) (Run, error)
	// MarkRunComplete releases the limiter slot and the run -> job mapping.
	MarkRunComplete(runID string)
	// AppendEvent appends ev to the shared event log.
	AppendEvent(ev Event) error
	// EventLog exposes the shared log for readers.
	EventLog() EventLog
}
