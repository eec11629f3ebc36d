// Package agent contains the run execution loop: it asks a planner for a plan,
// walks the plan under a step budget and a cooperative stop flag, invokes tools
// through the registry under a scope policy, and records every transition in
// the event log.
//
// Execution model:
//   - Loop.Run is synchronous and executes exactly one run from run_started
//     to run_finished.
//   - The stop flag is read before each step; a started step always completes.
//   - Tool handler failures become tool_result{success: false} and the run
//     continues. Unknown tools, scope denials and payload contract violations
//     abort the run after run_finished is recorded.
package agent
