package controlplane

import (
	"context"
	"fmt"

	"github.com/hupe1980/runmesh/artifact"
	"github.com/hupe1980/runmesh/core"
	"github.com/hupe1980/runmesh/evaluation"
	"github.com/hupe1980/runmesh/internal/util"
	"github.com/hupe1980/runmesh/logging"
	"github.com/hupe1980/runmesh/snapshot"
	"github.com/hupe1980/runmesh/state"
)

// Options configures a ControlPlane.
type Options struct {
	// Snapshots builds the snapshot id of each job. Defaults to snapshot.IDBuilder.
	Snapshots snapshot.Builder
	// Artifacts backs ListArtifacts. It should be the store tools write to.
	Artifacts core.ArtifactStore
	// Evaluator backs EvaluateRun. Defaults to evaluation.ToolSuccessEvaluator.
	Evaluator evaluation.Evaluator
	Callbacks []Callback
	Logger    logging.Logger
}

// ControlPlane exposes the orchestration operations over a state.Store and a
// RunnerBackend. Safe for concurrent use.
type ControlPlane struct {
	store     *state.Store
	backend   core.RunnerBackend
	snapshots snapshot.Builder
	artifacts core.ArtifactStore
	evaluator evaluation.Evaluator
	callbacks *CallbackManager
	logger    logging.Logger
}

// New creates a control plane.
func New(store *state.Store, backend core.RunnerBackend, optFns ...func(o *Options)) *ControlPlane {
	opts := Options{
		Snapshots: snapshot.IDBuilder{},
		Artifacts: artifact.NewInMemoryStore(),
		Evaluator: evaluation.ToolSuccessEvaluator{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	callbacks := NewCallbackManager()
	callbacks.RegisterCallback(opts.Callbacks...)

	return &ControlPlane{
		store:     store,
		backend:   backend,
		snapshots: opts.Snapshots,
		artifacts: opts.Artifacts,
		evaluator: opts.Evaluator,
		callbacks: callbacks,
		logger:    logging.OrNoOp(opts.Logger),
	}
}

// Store returns the underlying state.
func (cp *ControlPlane) Store() *state.Store { return cp.store }

// RegisterRepo records a repository.
func (cp *ControlPlane) RegisterRepo(url string) core.Repo {
	return cp.store.RegisterRepo(url)
}

// GetRepo returns a registered repository.
func (cp *ControlPlane) GetRepo(repoID string) (core.Repo, error) {
	return cp.store.GetRepo(repoID)
}

// CreateSession binds a new active session to repoID.
func (cp *ControlPlane) CreateSession(repoID string) core.Session {
	sess := cp.store.CreateSession(repoID)
	cp.logger.Info("Session created", "session_id", sess.ID, "repo_id", repoID)
	return sess
}

// GetSession returns a session.
func (cp *ControlPlane) GetSession(sessionID string) (core.Session, error) {
	return cp.store.GetSession(sessionID)
}

// CreateRun queues a run for prompt. It fails with core.ErrUnknownSession.
func (cp *ControlPlane) CreateRun(ctx context.Context, sessionID, prompt string) (core.Run, error) {
	run, err := cp.store.CreateRun(sessionID, prompt)
	if err != nil {
		return core.Run{}, err
	}

	cp.fire(ctx, &CallbackContext{Type: CallbackRunCreated, Run: run})

	return run, nil
}

// GetRun returns a run.
func (cp *ControlPlane) GetRun(runID string) (core.Run, error) {
	return cp.store.GetRun(runID)
}

// ListRuns returns a session's runs in creation order.
func (cp *ControlPlane) ListRuns(sessionID string) ([]core.Run, error) {
	return cp.store.ListRuns(sessionID)
}

// ProcessOnce performs one dispatch tick and reports whether a job was
// submitted. An empty queue or a full limiter yields false. A backend error is
// returned alongside true: the run was dispatched and the backend owns its
// terminal status.
func (cp *ControlPlane) ProcessOnce(ctx context.Context) (bool, error) {
	d, err := cp.store.DispatchNext(cp.jobBuilder(ctx))
	if err != nil {
		if d.Run.ID != "" {
			cp.fire(ctx, &CallbackContext{Type: CallbackOnError, Run: d.Run, Err: err})
		}
		return false, err
	}

	switch d.Outcome {
	case state.DispatchIdle:
		return false, nil
	case state.DispatchBlocked:
		cp.fire(ctx, &CallbackContext{Type: CallbackDispatchBlocked, Run: d.Run, Active: d.Active, Max: d.Max})
		return false, nil
	}

	cp.logger.Debug("Submitting job", "run_id", d.Run.ID, "job_id", d.Job.JobID, "snapshot_id", d.Job.SnapshotID)
	cp.fire(ctx, &CallbackContext{Type: CallbackRunDispatched, Run: d.Run, Job: &d.Job, Active: d.Active, Max: d.Max})

	if err := cp.backend.SubmitJob(ctx, d.Job); err != nil {
		cp.fire(ctx, &CallbackContext{Type: CallbackOnError, Run: d.Run, Job: &d.Job, Err: err})
		return true, fmt.Errorf("submit job %s: %w", d.Job.JobID, err)
	}

	return true, nil
}

func (cp *ControlPlane) jobBuilder(ctx context.Context) state.JobBuilder {
	return func(run core.Run, sess core.Session) (core.RunnerJob, error) {
		snap, err := cp.snapshots.Build(ctx, snapshot.Request{RepoID: sess.RepoID})
		if err != nil {
			return core.RunnerJob{}, err
		}

		return core.RunnerJob{
			JobID:      util.NewID("job"),
			SessionID:  run.SessionID,
			RunID:      run.ID,
			SnapshotID: snap.SnapshotID,
		}, nil
	}
}

// StreamEvents returns the session's events in append order. It fails with
// core.ErrUnknownSession.
func (cp *ControlPlane) StreamEvents(sessionID string) ([]core.Event, error) {
	return cp.store.ListEvents(sessionID)
}

// CancelRun cancels a run. Queued runs are canceled in place with
// run_canceled{reason: requested}; dispatched runs are forwarded to the
// backend. Terminal runs fail with core.ErrRunTerminal.
func (cp *ControlPlane) CancelRun(ctx context.Context, runID string) (core.Run, error) {
	run, jobID, err := cp.store.CancelQueued(runID, "requested")
	if err != nil {
		return run, err
	}

	if jobID != "" {
		if err := cp.backend.CancelJob(ctx, jobID); err != nil {
			cp.fire(ctx, &CallbackContext{Type: CallbackOnError, Run: run, Err: err})
			return run, fmt.Errorf("cancel job %s: %w", jobID, err)
		}
		if run, err = cp.store.GetRun(runID); err != nil {
			return run, err
		}
	}

	cp.fire(ctx, &CallbackContext{Type: CallbackRunCanceled, Run: run})

	return run, nil
}

// ListArtifacts lists the artifact ids saved by a run's tools. A run without
// artifacts yields an empty list.
func (cp *ControlPlane) ListArtifacts(runID string) ([]string, error) {
	if _, err := cp.store.GetRun(runID); err != nil {
		return nil, err
	}

	ids, err := cp.artifacts.List(runID)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}

	return ids, nil
}

// GetArtifact returns the content of one artifact.
func (cp *ControlPlane) GetArtifact(runID, artifactID string) ([]byte, error) {
	return cp.artifacts.Get(runID, artifactID)
}

// EvaluateRun scores a run from its recorded events.
func (cp *ControlPlane) EvaluateRun(runID string) (*evaluation.Result, error) {
	run, err := cp.store.GetRun(runID)
	if err != nil {
		return nil, err
	}

	events, err := cp.store.ListEvents(run.SessionID)
	if err != nil {
		return nil, err
	}

	return cp.evaluator.Evaluate(evaluation.Invocation{RunID: run.ID, Events: events})
}

// Health reports liveness.
func (cp *ControlPlane) Health() map[string]string {
	return map[string]string{"status": "ok"}
}

func (cp *ControlPlane) fire(ctx context.Context, cc *CallbackContext) {
	if cc.Active == 0 && cc.Max == 0 {
		cc.Active, cc.Max = cp.store.Active(), cp.store.MaxActive()
	}
	cc.QueueLen = cp.store.QueueLen()

	if err := cp.callbacks.ExecuteCallbacks(ctx, cc); err != nil {
		cp.logger.Warn("Callback failed", "callback", string(cc.Type), "run_id", cc.Run.ID, "error", err)
	}
}
