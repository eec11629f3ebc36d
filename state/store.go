package state

import (
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/hupe1980/runmesh/core"
	"github.com/hupe1980/runmesh/eventlog"
	"github.com/hupe1980/runmesh/internal/util"
	"github.com/hupe1980/runmesh/logging"
	"github.com/hupe1980/runmesh/queue"
)

// DefaultMaxActiveRuns bounds concurrently dispatched runs when no value is configured.
const DefaultMaxActiveRuns = 2

// Options configures a Store.
type Options struct {
	MaxActiveRuns int
	// EventLog is the underlying log. Defaults to an in-memory log.
	EventLog core.EventLog
	Logger   logging.Logger
}

// Store is the owned, concurrency-safe orchestration state.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*core.Session
	repos    map[string]core.Repo
	runs     map[string]*core.Run
	runOrder map[string][]string // session id -> run ids in creation order
	jobs     map[string]string   // run id -> outstanding job id
	queue    *queue.PromptQueue
	limiter  *core.ConcurrencyLimiter
	log      core.EventLog
	logger   logging.Logger
}

// New creates an empty Store.
func New(optFns ...func(o *Options)) *Store {
	opts := Options{MaxActiveRuns: DefaultMaxActiveRuns}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.EventLog == nil {
		opts.EventLog = eventlog.NewInMemoryLog()
	}

	return &Store{
		sessions: make(map[string]*core.Session),
		repos:    make(map[string]core.Repo),
		runs:     make(map[string]*core.Run),
		runOrder: make(map[string][]string),
		jobs:     make(map[string]string),
		queue:    queue.New(),
		limiter:  core.NewConcurrencyLimiter(opts.MaxActiveRuns),
		log:      opts.EventLog,
		logger:   logging.OrNoOp(opts.Logger),
	}
}

// RegisterRepo records a repository and returns it with a fresh "repo_" id.
func (s *Store) RegisterRepo(url string) core.Repo {
	repo := core.Repo{ID: util.NewID("repo"), URL: url}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.repos[repo.ID] = repo

	return repo
}

// GetRepo returns a registered repository.
func (s *Store) GetRepo(repoID string) (core.Repo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, ok := s.repos[repoID]
	if !ok {
		return core.Repo{}, fmt.Errorf("%w: %s", core.ErrUnknownRepo, repoID)
	}

	return repo, nil
}

// CreateSession binds a new active session to repoID. The repo id is not
// required to be registered.
func (s *Store) CreateSession(repoID string) core.Session {
	sess := &core.Session{ID: util.NewID("sess"), RepoID: repoID, Status: core.SessionStatusActive}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.ID] = sess

	return *sess
}

// GetSession returns a copy of the session.
func (s *Store) GetSession(sessionID string) (core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return core.Session{}, fmt.Errorf("%w: %s", core.ErrUnknownSession, sessionID)
	}

	return *sess, nil
}

// SetSessionStatus updates the session status in place.
func (s *Store) SetSessionStatus(sessionID, status string) (core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return core.Session{}, fmt.Errorf("%w: %s", core.ErrUnknownSession, sessionID)
	}
	sess.Status = status

	return *sess, nil
}

// CreateRun records a queued run, appends run_queued{prompt} and enqueues the
// run id. The session must exist.
func (s *Store) CreateRun(sessionID, prompt string) (core.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return core.Run{}, fmt.Errorf("%w: %s", core.ErrUnknownSession, sessionID)
	}

	run := &core.Run{ID: util.NewID("run"), SessionID: sessionID, Prompt: prompt, Status: core.RunStatusQueued}

	ev := core.NewEvent(core.EventRunQueued, sessionID, run.ID, map[string]any{"prompt": prompt})
	if err := s.log.Append(ev); err != nil {
		return core.Run{}, err
	}

	s.runs[run.ID] = run
	s.runOrder[sessionID] = append(s.runOrder[sessionID], run.ID)
	s.queue.Enqueue(run.ID)

	return *run, nil
}

// ListRuns returns the session's runs in creation order.
func (s *Store) ListRuns(sessionID string) ([]core.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownSession, sessionID)
	}

	ids := s.runOrder[sessionID]
	out := make([]core.Run, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.runs[id])
	}

	return out, nil
}

// ListEvents collects the session's events in append order.
func (s *Store) ListEvents(sessionID string) ([]core.Event, error) {
	if _, err := s.GetSession(sessionID); err != nil {
		return nil, err
	}

	return slices.Collect(s.log.ListForSession(sessionID)), nil
}

// JobForRun returns the outstanding job id of a dispatched run.
func (s *Store) JobForRun(runID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobID, ok := s.jobs[runID]

	return jobID, ok
}

// QueueLen returns the number of runs waiting for dispatch.
func (s *Store) QueueLen() int { return s.queue.Len() }

// QueuedRunIDs returns the pending run ids, oldest first.
func (s *Store) QueuedRunIDs() []string { return s.queue.Snapshot() }

// Active returns the number of dispatched, not yet finalized runs.
func (s *Store) Active() int { return s.limiter.Active() }

// MaxActive returns the concurrency bound.
func (s *Store) MaxActive() int { return s.limiter.Max() }

// GetRun returns a copy of the run record.
func (s *Store) GetRun(runID string) (core.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return core.Run{}, fmt.Errorf("%w: %s", core.ErrUnknownRun, runID)
	}

	return *run, nil
}

// UpdateRunStatus transitions a run and appends ev in the same critical
// section. ev must describe the same run.
func (s *Store) UpdateRunStatus(runID string, status core.RunStatus, ev core.Event) (core.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.transitionLocked(runID, status, ev)
}

func (s *Store) transitionLocked(runID string, status core.RunStatus, ev core.Event) (core.Run, error) {
	run, ok := s.runs[runID]
	if !ok {
		return core.Run{}, fmt.Errorf("%w: %s", core.ErrUnknownRun, runID)
	}
	if run.Status.IsTerminal() {
		return *run, fmt.Errorf("%w: %s is %s", core.ErrRunTerminal, runID, run.Status)
	}
	if !run.Status.CanTransitionTo(status) {
		return *run, fmt.Errorf("%w: %s -> %s", core.ErrInvalidTransition, run.Status, status)
	}
	if ev.RunID != runID || ev.SessionID != run.SessionID {
		return *run, fmt.Errorf("%w: event does not belong to run %s", core.ErrInvalidEvent, runID)
	}

	if err := s.log.Append(ev); err != nil {
		return *run, err
	}
	run.Status = status

	return *run, nil
}

// MarkRunComplete releases the run's limiter slot and forgets its job. Calls
// for a run without an outstanding job are no-ops, so the slot is released at
// most once per dispatch.
func (s *Store) MarkRunComplete(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[runID]; !ok {
		return
	}
	delete(s.jobs, runID)
	s.limiter.MarkFinished()
}

// AppendEvent appends ev to the log while holding the state lock.
func (s *Store) AppendEvent(ev core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.log.Append(ev)
}

// EventLog returns a view of the log whose appends are serialized with state changes.
func (s *Store) EventLog() core.EventLog {
	return lockedLog{s: s}
}

type lockedLog struct {
	s *Store
}

func (l lockedLog) Append(ev core.Event) error { return l.s.AppendEvent(ev) }

func (l lockedLog) ListForSession(sessionID string) iter.Seq[core.Event] {
	return l.s.log.ListForSession(sessionID)
}

var (
	_ core.RunState = (*Store)(nil)
	_ core.EventLog = lockedLog{}
)
