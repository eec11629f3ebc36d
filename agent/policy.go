package agent

import "sync/atomic"

// DefaultMaxSteps is the step budget of DefaultRunPolicy.
const DefaultMaxSteps = 8

// RunPolicy bounds a single run.
type RunPolicy struct {
	// MaxSteps is the maximum number of plan steps executed. Zero or less selects DefaultMaxSteps.
	MaxSteps int `json:"max_steps" yaml:"max_steps"`
}

// DefaultRunPolicy returns the default policy.
func DefaultRunPolicy() RunPolicy {
	return RunPolicy{MaxSteps: DefaultMaxSteps}
}

// StopController is a cooperative stop flag shared between the loop and
// whoever wants to stop it. Safe for concurrent use.
type StopController struct {
	stop atomic.Bool
}

// NewStopController returns a controller that has not been stopped.
func NewStopController() *StopController {
	return &StopController{}
}

// RequestStop asks the loop to stop before its next step.
func (s *StopController) RequestStop() { s.stop.Store(true) }

// ShouldStop reports whether a stop was requested.
func (s *StopController) ShouldStop() bool { return s.stop.Load() }

// Input identifies the run to execute.
type Input struct {
	SessionID string
	RunID     string
	RepoID    string
	Prompt    string
}

// Result summarizes a finished loop.
type Result struct {
	StepsExecuted int  `json:"steps_executed"`
	Stopped       bool `json:"stopped"`
}
