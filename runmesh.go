// Package runmesh provides a high-level facade over the orchestration core. It
// wires the shared state, tool registry, planner, agent loop, runner backend
// and control plane together. Most applications:
//  1. Create a Runmesh via New() or FromConfig()
//  2. Use ControlPlane() to create sessions and runs and to drive dispatch
//     (or RunSync for a one-shot run)
//  3. Read the resulting events with StreamEvents
//
// All defaults are in-memory and safe for local development and tests.
package runmesh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hupe1980/runmesh/agent"
	"github.com/hupe1980/runmesh/artifact"
	"github.com/hupe1980/runmesh/controlplane"
	"github.com/hupe1980/runmesh/core"
	"github.com/hupe1980/runmesh/eventlog"
	"github.com/hupe1980/runmesh/logging"
	"github.com/hupe1980/runmesh/metrics"
	"github.com/hupe1980/runmesh/planner"
	"github.com/hupe1980/runmesh/runner"
	"github.com/hupe1980/runmesh/snapshot"
	"github.com/hupe1980/runmesh/state"
	"github.com/hupe1980/runmesh/tool"
	"github.com/hupe1980/runmesh/tool/builtin"
)

// Options configures a Runmesh instance.
type Options struct {
	// MaxActiveRuns bounds concurrently dispatched runs.
	MaxActiveRuns int
	// Policy bounds each run.
	Policy agent.RunPolicy
	// Scopes are granted to every tool call. Defaults to builtin.DefaultScopes.
	Scopes      []string
	ToolTimeout time.Duration

	// Planner defaults to a planner.RulePlanner.
	Planner core.Planner
	// Tools defaults to the builtin registry.
	Tools *tool.Registry

	// EventLog defaults to an in-memory log. An io.Closer is closed by Close.
	EventLog  core.EventLog
	Artifacts core.ArtifactStore
	// Snapshots defaults to a snapshot.Cache over snapshot.IDBuilder.
	Snapshots snapshot.Builder

	// Async selects the goroutine-per-job backend instead of the synchronous one.
	Async bool

	// Metrics, when set, receives control plane and tool metrics.
	Metrics   *metrics.Metrics
	Callbacks []controlplane.Callback
	Logger    logging.Logger
}

// Runmesh aggregates the wired components.
type Runmesh struct {
	opts    Options
	store   *state.Store
	cp      *controlplane.ControlPlane
	backend core.RunnerBackend
	async   *runner.AsyncBackend
}

// New creates a Runmesh with optional overrides. Unset components get
// in-memory defaults.
func New(optFns ...func(o *Options)) (*Runmesh, error) {
	opts := Options{
		MaxActiveRuns: state.DefaultMaxActiveRuns,
		Policy:        agent.DefaultRunPolicy(),
		Scopes:        builtin.DefaultScopes,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Planner == nil {
		opts.Planner = planner.NewRulePlanner()
	}
	if opts.Tools == nil {
		reg, err := builtin.NewRegistry()
		if err != nil {
			return nil, err
		}
		opts.Tools = reg
	}
	if opts.EventLog == nil {
		opts.EventLog = eventlog.NewInMemoryLog()
	}
	if opts.Artifacts == nil {
		opts.Artifacts = artifact.NewInMemoryStore()
	}
	if opts.Snapshots == nil {
		cache, err := snapshot.NewCache(snapshot.IDBuilder{}, func(o *snapshot.CacheOptions) { o.Logger = opts.Logger })
		if err != nil {
			return nil, err
		}
		opts.Snapshots = cache
	}

	store := state.New(func(o *state.Options) {
		o.MaxActiveRuns = opts.MaxActiveRuns
		o.EventLog = opts.EventLog
		o.Logger = opts.Logger
	})

	loop := agent.NewLoop(opts.Planner, opts.Tools, runner.NewStatusLog(store), func(o *agent.Options) {
		o.Policy = opts.Policy
		o.Scopes = tool.NewScopePolicy(opts.Scopes...)
		o.Artifacts = opts.Artifacts
		o.ToolTimeout = opts.ToolTimeout
		o.Logger = opts.Logger
		var observers agent.ToolObservers
		if opts.Metrics != nil {
			observers = append(observers, opts.Metrics)
		}
		if obs, ok := opts.Logger.(agent.ToolObserver); ok {
			observers = append(observers, obs)
		}
		if len(observers) > 0 {
			o.Observer = observers
		}
	})

	runnerOpts := func(o *runner.Options) {
		o.Logger = opts.Logger
		o.OnFinalize = func(job core.RunnerJob) {
			if opts.Metrics == nil {
				return
			}
			if run, err := store.GetRun(job.RunID); err == nil {
				opts.Metrics.RunCompleted(string(run.Status))
			}
			opts.Metrics.SetActive(store.Active())
		}
	}

	m := &Runmesh{opts: opts, store: store}
	if opts.Async {
		m.async = runner.NewAsync(store, loop, runnerOpts)
		m.backend = m.async
	} else {
		m.backend = runner.NewLocal(store, loop, runnerOpts)
	}

	callbacks := append(controlplane.LoggingCallbacks(opts.Logger), opts.Callbacks...)
	if opts.Metrics != nil {
		callbacks = append(callbacks, controlplane.MetricsCallbacks(opts.Metrics)...)
	}

	m.cp = controlplane.New(store, m.backend, func(o *controlplane.Options) {
		o.Snapshots = opts.Snapshots
		o.Artifacts = opts.Artifacts
		o.Callbacks = callbacks
		o.Logger = opts.Logger
	})

	return m, nil
}

// ControlPlane returns the control plane.
func (m *Runmesh) ControlPlane() *controlplane.ControlPlane { return m.cp }

// Backend returns the runner backend.
func (m *Runmesh) Backend() core.RunnerBackend { return m.backend }

// Tools returns the tool registry.
func (m *Runmesh) Tools() *tool.Registry { return m.opts.Tools }

// Metrics returns the configured metrics or nil.
func (m *Runmesh) Metrics() *metrics.Metrics { return m.opts.Metrics }

// RunSync creates a session for repoID, queues prompt and drives dispatch
// until the run is terminal. It returns the final run, the session's events
// and the first dispatch error.
func (m *Runmesh) RunSync(ctx context.Context, repoID, prompt string) (core.Run, []core.Event, error) {
	sess := m.cp.CreateSession(repoID)

	run, err := m.cp.CreateRun(ctx, sess.ID, prompt)
	if err != nil {
		return core.Run{}, nil, err
	}

	var dispatchErr error
	for !run.Status.IsTerminal() {
		if err := ctx.Err(); err != nil {
			return run, nil, err
		}

		submitted, err := m.cp.ProcessOnce(ctx)
		if err != nil && dispatchErr == nil {
			dispatchErr = err
		}

		if m.async != nil {
			m.async.Wait()
		}

		var getErr error
		if run, getErr = m.cp.GetRun(run.ID); getErr != nil {
			return run, nil, getErr
		}
		if !submitted && err != nil {
			break
		}
	}

	events, err := m.cp.StreamEvents(sess.ID)
	if err != nil {
		return run, nil, err
	}

	return run, events, dispatchErr
}

// Close waits for in-flight async jobs and closes the event log if it holds resources.
func (m *Runmesh) Close() error {
	if m.async != nil {
		m.async.Wait()
	}

	var errs []error
	if c, ok := m.opts.EventLog.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close event log: %w", err))
		}
	}

	return errors.Join(errs...)
}
