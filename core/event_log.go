package core

import "iter"

// EventLog is an append-only ordered store of events. There is
// no update or delete operation.
type EventLog interface {
	// Append validates and stores ev. Malformed envelopes fail with ErrInvalidEvent.
	Append(ev Event) error
	// ListForSession yields the events of one session in append order. The
	// sequence is lazy, finite and can be ranged over more than once.
	ListForSession(sessionID string) iter.Seq[Event]
}
