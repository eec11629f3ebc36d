// Package core provides the foundational domain types and narrow interfaces
// used by runmesh. It defines the core abstractions for:
//
//   - Events (immutable, timestamped envelopes; the single audit and streaming primitive)
//   - Sessions and Runs (repository bindings and their prompt executions)
//   - RunnerJobs (one dispatch attempt of a run handed to a runner backend)
//   - PlanSteps (planner output consumed by the agent loop)
//   - The ConcurrencyLimiter bounding simultaneously active runs
//
// Implementation concerns (event storage, queueing, dispatch, execution) live
// in their own packages and meet here through small interfaces such as
// EventLog, RunState and RunnerBackend so alternative backends can be plugged in.
package core
