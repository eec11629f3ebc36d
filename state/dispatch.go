package state

import (
	"errors"
	"fmt"

	"github.com/hupe1980/runmesh/core"
)

// DispatchOutcome classifies one dispatch attempt.
type DispatchOutcome int

const (
	// DispatchIdle means the queue held no dispatchable run.
	DispatchIdle DispatchOutcome = iota
	// DispatchBlocked means the limiter was full; the run went back to the tail.
	DispatchBlocked
	// DispatchReady means the run is dispatched and Job must be submitted.
	DispatchReady
)

// String returns a lowercase label for logs and metrics.
func (o DispatchOutcome) String() string {
	switch o {
	case DispatchBlocked:
		return "blocked"
	case DispatchReady:
		return "dispatched"
	default:
		return "idle"
	}
}

// Dispatch is the result of DispatchNext.
type Dispatch struct {
	Outcome DispatchOutcome
	Run     core.Run
	Job     core.RunnerJob
	Active  int
	Max     int
}

// JobBuilder creates the job for a run that is about to be dispatched.
type JobBuilder func(run core.Run, session core.Session) (core.RunnerJob, error)

// DispatchNext pops the oldest queued run and, if the limiter has room,
// transitions it to dispatched, takes a limiter slot, appends
// run_dispatched{job_id, snapshot_id} and records the run -> job mapping, all
// under one lock. When the limiter is full the run is re-enqueued at the tail
// and run_dispatch_blocked{active, max} is appended instead.
//
// When build fails the slot is released and the run fails with
// run_finished{stopped: false, error}; the build error is returned.
//
// Entries whose run is no longer queued (for example canceled while waiting)
// are skipped. Submitting the returned job is left to the caller so that no
// lock is held while the backend executes.
func (s *Store) DispatchNext(build JobBuilder) (Dispatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		runID, ok := s.queue.Dequeue()
		if !ok {
			return Dispatch{Outcome: DispatchIdle, Max: s.limiter.Max()}, nil
		}

		run, ok := s.runs[runID]
		if !ok || run.Status != core.RunStatusQueued {
			s.logger.Debug("Skipping stale queue entry", "run_id", runID)
			continue
		}

		return s.dispatchLocked(run, build)
	}
}

func (s *Store) dispatchLocked(run *core.Run, build JobBuilder) (Dispatch, error) {
	if !s.limiter.TryDispatch() {
		active, max := s.limiter.Active(), s.limiter.Max()
		s.queue.Enqueue(run.ID)

		ev := core.NewEvent(core.EventRunDispatchBlocked, run.SessionID, run.ID, map[string]any{"active": active, "max": max})
		if err := s.log.Append(ev); err != nil {
			return Dispatch{}, err
		}

		return Dispatch{Outcome: DispatchBlocked, Run: *run, Active: active, Max: max}, nil
	}

	job, err := build(*run, *s.sessions[run.SessionID])
	if err != nil {
		s.limiter.MarkFinished()
		buildErr := fmt.Errorf("build job for %s: %w", run.ID, err)

		ev := core.NewEvent(core.EventRunFinished, run.SessionID, run.ID, map[string]any{
			"stopped": false,
			"error":   buildErr.Error(),
		})
		failed, terr := s.transitionLocked(run.ID, core.RunStatusFailed, ev)
		if terr != nil {
			s.queue.Enqueue(run.ID)
			return Dispatch{}, errors.Join(buildErr, terr)
		}
		s.logger.Warn("Run failed before dispatch", "run_id", run.ID, "error", err)

		return Dispatch{Outcome: DispatchIdle, Run: failed, Max: s.limiter.Max()}, buildErr
	}

	ev := core.NewEvent(core.EventRunDispatched, run.SessionID, run.ID, map[string]any{
		"job_id":      job.JobID,
		"snapshot_id": job.SnapshotID,
	})
	if _, err := s.transitionLocked(run.ID, core.RunStatusDispatched, ev); err != nil {
		s.limiter.MarkFinished()
		s.queue.Enqueue(run.ID)
		return Dispatch{}, err
	}
	s.jobs[run.ID] = job.JobID

	return Dispatch{
		Outcome: DispatchReady,
		Run:     *run,
		Job:     job,
		Active:  s.limiter.Active(),
		Max:     s.limiter.Max(),
	}, nil
}

// CancelQueued cancels a run that has not been dispatched yet. It removes the
// run from the queue, sets it canceled and appends run_canceled{reason}.
//
// For a dispatched run it returns the outstanding job id and leaves the run
// untouched so the caller can forward the request to the runner backend.
// Terminal runs fail with core.ErrRunTerminal.
func (s *Store) CancelQueued(runID, reason string) (run core.Run, jobID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[runID]
	if !ok {
		return core.Run{}, "", fmt.Errorf("%w: %s", core.ErrUnknownRun, runID)
	}

	switch {
	case r.Status.IsTerminal():
		return *r, "", fmt.Errorf("%w: %s is %s", core.ErrRunTerminal, runID, r.Status)
	case r.Status == core.RunStatusDispatched:
		return *r, s.jobs[runID], nil
	}

	ev := core.NewEvent(core.EventRunCanceled, r.SessionID, r.ID, map[string]any{"reason": reason})
	updated, err := s.transitionLocked(runID, core.RunStatusCanceled, ev)
	if err != nil {
		return updated, "", err
	}
	s.queue.Remove(runID)

	return updated, "", nil
}
