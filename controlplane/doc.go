// Package controlplane is the entry point of the orchestration core. It owns a
// state.Store and a RunnerBackend and exposes the operations a transport layer
// consumes:
//
//   - CreateSession / CreateRun: register work; runs start queued.
//   - ProcessOnce: one dispatch tick. Pops the oldest queued run, dispatches it
//     when the concurrency limiter has room (re-enqueueing it at the tail
//     otherwise) and submits the job to the backend outside the state lock.
//   - StreamEvents: the session's events in append order.
//   - CancelRun: cancels queued runs directly and forwards dispatched runs to
//     the backend.
//
// Driver calls ProcessOnce on a ticker. Callbacks observe lifecycle points
// (run created, dispatched, blocked, canceled, errors) for logging and metrics.
package controlplane
