package testutil

import (
	"time"

	"github.com/hupe1980/runmesh/core"
)

// EventBuilder provides a fluent helper for constructing events in tests.
// Example:
//
//	ev := NewEventBuilder(core.EventRunQueued).Session("s1").Run("r1").With("prompt", "x").Build()
type EventBuilder struct {
	typ       core.EventType
	id        string
	sessionID string
	runID     string
	ts        time.Time
	payload   map[string]any
}

// NewEventBuilder creates a builder for typ with session "sess_test".
func NewEventBuilder(typ core.EventType) *EventBuilder {
	return &EventBuilder{typ: typ, sessionID: "sess_test", payload: map[string]any{}}
}

// ID overrides the generated event ID (chainable).
func (b *EventBuilder) ID(id string) *EventBuilder { b.id = id; return b }

// Session sets the session ID (chainable).
func (b *EventBuilder) Session(id string) *EventBuilder { b.sessionID = id; return b }

// Run sets the run ID (chainable).
func (b *EventBuilder) Run(id string) *EventBuilder { b.runID = id; return b }

// At fixes the timestamp (chainable).
func (b *EventBuilder) At(ts time.Time) *EventBuilder { b.ts = ts; return b }

// With sets a payload field (chainable).
func (b *EventBuilder) With(key string, value any) *EventBuilder {
	b.payload[key] = value
	return b
}

// Build constructs the core.Event value.
func (b *EventBuilder) Build() core.Event {
	ev := core.NewEvent(b.typ, b.sessionID, b.runID, b.payload)
	if b.id != "" {
		ev.ID = b.id
	}
	if !b.ts.IsZero() {
		ev.Timestamp = b.ts.UTC()
	}
	return ev
}

// Types returns the event types of events, in order.
func Types(events []core.Event) []core.EventType {
	out := make([]core.EventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

// Filter returns the events of type typ, in order.
func Filter(events []core.Event, typ core.EventType) []core.Event {
	var out []core.Event
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}
