// Package state holds the orchestration state shared by the control plane and
// runner backends: sessions, repositories, runs, the prompt queue, the
// concurrency limiter, the run -> job mapping and the event log.
//
// All four mutable structures (run records, event log, job mapping, limiter)
// are guarded by one mutex owned by Store, so dispatch, status updates and
// cancellation never observe each other half-applied. Every run status change
// appends its event inside the same critical section, which keeps the log in
// causal order.
package state
