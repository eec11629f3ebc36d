// Package evaluation scores finished runs from their event stream.
package evaluation

import (
	"github.com/hupe1980/runmesh/core"
)

// PassThreshold is the minimum score RuleBasedJudge accepts.
const PassThreshold = 0.8

// Verdict is a judge's decision.
type Verdict string

const (
	VerdictPass Verdict = "pass"
	VerdictFail Verdict = "fail"
)

// Invocation is the recorded history of one run.
type Invocation struct {
	RunID  string
	Events []core.Event
}

// Result is the outcome of an evaluation.
type Result struct {
	Score       float64 `json:"score"`
	Verdict     Verdict `json:"verdict"`
	ToolResults int     `json:"tool_results"`
	Successes   int     `json:"successes"`
}

// Evaluator scores an invocation.
type Evaluator interface {
	Evaluate(invocation Invocation) (*Result, error)
}

// ScoreRun returns the fraction of tool_result events that succeeded, or 0
// when the run invoked no tools.
func ScoreRun(events []core.Event) float64 {
	total, ok := countToolResults(events)
	if total == 0 {
		return 0
	}
	return float64(ok) / float64(total)
}

// RuleBasedJudge passes scores of at least PassThreshold.
func RuleBasedJudge(score float64) Verdict {
	if score >= PassThreshold {
		return VerdictPass
	}
	return VerdictFail
}

// ToolSuccessEvaluator scores runs with ScoreRun and judges them with RuleBasedJudge.
type ToolSuccessEvaluator struct{}

// Evaluate considers only the events of invocation.RunID when it is set.
func (ToolSuccessEvaluator) Evaluate(invocation Invocation) (*Result, error) {
	events := invocation.Events
	if invocation.RunID != "" {
		events = ForRun(events, invocation.RunID)
	}

	total, ok := countToolResults(events)
	score := ScoreRun(events)

	return &Result{
		Score:       score,
		Verdict:     RuleBasedJudge(score),
		ToolResults: total,
		Successes:   ok,
	}, nil
}

// ForRun returns the events of runID in their original order.
func ForRun(events []core.Event, runID string) []core.Event {
	var out []core.Event
	for _, ev := range events {
		if ev.RunID == runID {
			out = append(out, ev)
		}
	}
	return out
}

func countToolResults(events []core.Event) (total, ok int) {
	for _, ev := range events {
		if ev.Type != core.EventToolResult {
			continue
		}
		total++
		if ev.PayloadBool("success") {
			ok++
		}
	}
	return total, ok
}

var _ Evaluator = ToolSuccessEvaluator{}
