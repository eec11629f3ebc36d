// Package planner turns prompts into plans for the agent loop.
//
// RulePlanner is a pure keyword planner. ModelPlanner asks a language model
// for a JSON plan, memoizes the answer per prompt so repeated calls stay
// deterministic, and falls back to a RulePlanner whenever the model fails or
// returns something unusable.
package planner
