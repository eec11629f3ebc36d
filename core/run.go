package core

// RunStatus is the lifecycle state of a Run.
type RunStatus string

// Run statuses. A run moves queued -> dispatched -> one terminal status; a
// queued run may also be canceled directly, or fail when no job can be built
// for it.
const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusDispatched RunStatus = "dispatched"
	RunStatusFinished   RunStatus = "finished"
	RunStatusStopped    RunStatus = "stopped"
	RunStatusCanceled   RunStatus = "canceled"
	RunStatusFailed     RunStatus = "failed"
)

var runTransitions = map[RunStatus][]RunStatus{
	RunStatusQueued:     {RunStatusDispatched, RunStatusCanceled, RunStatusFailed},
	RunStatusDispatched: {RunStatusFinished, RunStatusStopped, RunStatusCanceled, RunStatusFailed},
}

// IsTerminal reports whether no further transitions are possible.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusFinished, RunStatusStopped, RunStatusCanceled, RunStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the state machine allows s -> next.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	for _, allowed := range runTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Run is one execution attempt of a prompt inside a session. Only Status changes
// after creation, and every change is paired with an Event.
type Run struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Prompt    string    `json:"prompt"`
	Status    RunStatus `json:"status"`
}
