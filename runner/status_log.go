package runner

import (
	"errors"
	"iter"

	"github.com/hupe1980/runmesh/core"
)

// StatusLog is an EventLog that turns run_finished events into terminal run
// status changes. Hand it to the agent loop so the event that ends a run and
// the status it implies are recorded together.
type StatusLog struct {
	state core.RunState
}

// NewStatusLog wraps state.
func NewStatusLog(state core.RunState) *StatusLog {
	return &StatusLog{state: state}
}

// Append forwards ev to the shared log. A run_finished event moves its run to
// failed (payload carries "error"), stopped (payload "stopped" is true) or
// finished. When the run already reached a terminal status, for example after
// a cancel crossed a completing run, the event is appended without a status change.
func (l *StatusLog) Append(ev core.Event) error {
	if ev.Type != core.EventRunFinished {
		return l.state.AppendEvent(ev)
	}

	_, err := l.state.UpdateRunStatus(ev.RunID, FinishedStatus(ev), ev)
	if errors.Is(err, core.ErrRunTerminal) {
		return l.state.AppendEvent(ev)
	}

	return err
}

// ListForSession reads from the shared log.
func (l *StatusLog) ListForSession(sessionID string) iter.Seq[core.Event] {
	return l.state.EventLog().ListForSession(sessionID)
}

// FinishedStatus maps a run_finished event to the terminal status it implies.
func FinishedStatus(ev core.Event) core.RunStatus {
	switch {
	case ev.PayloadString("error") != "":
		return core.RunStatusFailed
	case ev.PayloadBool("stopped"):
		return core.RunStatusStopped
	default:
		return core.RunStatusFinished
	}
}

var _ core.EventLog = (*StatusLog)(nil)
