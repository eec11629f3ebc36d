package tool

import (
	"context"
	"errors"

	"github.com/hupe1980/runmesh/core"
	"github.com/hupe1980/runmesh/logging"
)

// ErrNoArtifactStore is returned by artifact helpers when the context carries no store.
var ErrNoArtifactStore = errors.New("no artifact store configured")

// ToolContextOptions configures a ToolContext.
type ToolContextOptions struct {
	SessionID string
	RunID     string
	RepoID    string
	Logger    logging.Logger
	Artifacts core.ArtifactStore
}

// ToolContext is the execution surface handed to a Handler: run correlation
// ids, a logger, cancellation via Context, and artifact helpers scoped to the run.
type ToolContext struct {
	ctx       context.Context
	sessionID string
	runID     string
	repoID    string
	logger    logging.Logger
	artifacts core.ArtifactStore
}

// NewToolContext constructs a context for one tool invocation.
func NewToolContext(ctx context.Context, optFns ...func(o *ToolContextOptions)) *ToolContext {
	opts := ToolContextOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	return &ToolContext{
		ctx:       ctx,
		sessionID: opts.SessionID,
		runID:     opts.RunID,
		repoID:    opts.RepoID,
		logger:    logging.OrNoOp(opts.Logger),
		artifacts: opts.Artifacts,
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// SessionID returns the session ID associated with the tool invocation.
func (tc *ToolContext) SessionID() string { return tc.sessionID }

// RunID returns the run ID associated with the tool invocation.
func (tc *ToolContext) RunID() string { return tc.runID }

// RepoID returns the repository the session is bound to.
func (tc *ToolContext) RepoID() string { return tc.repoID }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.logger }

// SaveArtifact stores data under artifactID for the current run.
func (tc *ToolContext) SaveArtifact(artifactID string, data []byte) error {
	if tc.artifacts == nil {
		return ErrNoArtifactStore
	}
	return tc.artifacts.Save(tc.runID, artifactID, data)
}

// ListArtifacts lists the current run's artifact ids.
func (tc *ToolContext) ListArtifacts() ([]string, error) {
	if tc.artifacts == nil {
		return nil, ErrNoArtifactStore
	}
	return tc.artifacts.List(tc.runID)
}
