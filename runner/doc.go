// Package runner implements RunnerBackend variants that execute dispatched
// jobs through the agent loop.
//
// # Backends
//   - LocalBackend runs the loop synchronously inside SubmitJob. Cancellation
//     mostly catches the race where CancelJob arrives before SubmitJob.
//   - AsyncBackend runs each job on its own goroutine and interrupts in-flight
//     runs on CancelJob.
//
// Both finalize every job exactly once: the limiter slot is released through
// RunState.MarkRunComplete whether the job finished, failed or was canceled.
//
// Terminal status is written through StatusLog: the loop's run_finished event
// and the matching status change are applied in one RunState.UpdateRunStatus call.
package runner
