package eventlog

import (
	"iter"
	"sync"

	"github.com/hupe1980/runmesh/core"
)

// InMemoryLog is a thread-safe, append-only event log held in memory.
// Events are indexed by session so ListForSession does not scan the full log.
type InMemoryLog struct {
	mu        sync.RWMutex
	events    []core.Event
	bySession map[string][]int
}

// NewInMemoryLog creates an empty log.
func NewInMemoryLog() *InMemoryLog {
	return &InMemoryLog{bySession: make(map[string][]int)}
}

// Append validates ev and stores a copy of it.
func (l *InMemoryLog) Append(ev core.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, ev.Clone())
	l.bySession[ev.SessionID] = append(l.bySession[ev.SessionID], len(l.events)-1)

	return nil
}

// ListForSession yields the session's events in append order. Each range over
// the returned sequence starts from the beginning and covers the events that
// existed when that range began.
func (l *InMemoryLog) ListForSession(sessionID string) iter.Seq[core.Event] {
	return func(yield func(core.Event) bool) {
		l.mu.RLock()
		positions := l.bySession[sessionID]
		n := len(positions)
		l.mu.RUnlock()

		for i := 0; i < n; i++ {
			l.mu.RLock()
			ev := l.events[positions[i]].Clone()
			l.mu.RUnlock()

			if !yield(ev) {
				return
			}
		}
	}
}

// Len returns the total number of events in the log.
func (l *InMemoryLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.events)
}

var _ core.EventLog = (*InMemoryLog)(nil)
