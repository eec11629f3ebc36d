package core

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/hupe1980/runmesh/internal/util"
)

// EventType names the state transition an Event describes.
type EventType string

// Event types produced by the orchestration core.
const (
	EventRunQueued          EventType = "run_queued"
	EventRunDispatched      EventType = "run_dispatched"
	EventRunDispatchBlocked EventType = "run_dispatch_blocked"
	EventRunStarted         EventType = "run_started"
	EventStepStarted        EventType = "step_started"
	EventToolResult         EventType = "tool_result"
	EventStepFinished       EventType = "step_finished"
	EventRunFinished        EventType = "run_finished"
	EventRunCanceled        EventType = "run_canceled"
)

// Event is an immutable record of one state transition. Its JSON form is the
// external wire envelope:
//
//	{"id": "...", "ts": "2025-01-01T00:00:00Z", "type": "...", "session_id": "...", "run_id": "...", "payload": {...}}
//
// Timestamp is always UTC so the encoded "ts" is an ISO-8601 string with a Z suffix.
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"ts"`
	Type      EventType      `json:"type"`
	SessionID string         `json:"session_id"`
	RunID     string         `json:"run_id"`
	Payload   map[string]any `json:"payload"`
}

// NewEvent creates a well-formed event with a fresh "evt_" identifier and the
// current UTC time. The payload map is copied; nil becomes an empty object.
func NewEvent(typ EventType, sessionID, runID string, payload map[string]any) Event {
	p := make(map[string]any, len(payload))
	maps.Copy(p, payload)

	return Event{
		ID:        util.NewID("evt"),
		Timestamp: time.Now().UTC(),
		Type:      typ,
		SessionID: sessionID,
		RunID:     runID,
		Payload:   p,
	}
}

// Validate reports whether e is a well-formed envelope. The returned error
// wraps ErrInvalidEvent.
func (e Event) Validate() error {
	switch {
	case e.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidEvent)
	case e.Type == "":
		return fmt.Errorf("%w: missing type", ErrInvalidEvent)
	case e.SessionID == "":
		return fmt.Errorf("%w: missing session_id", ErrInvalidEvent)
	case e.Timestamp.IsZero():
		return fmt.Errorf("%w: missing timestamp", ErrInvalidEvent)
	case e.Payload == nil:
		return fmt.Errorf("%w: missing payload", ErrInvalidEvent)
	}
	return nil
}

// Clone returns a copy of the event with its own top-level payload map.
func (e Event) Clone() Event {
	c := e
	if e.Payload != nil {
		c.Payload = maps.Clone(e.Payload)
	}
	return c
}

// PayloadString returns the string stored under key, or "" if absent or not a string.
func (e Event) PayloadString(key string) string {
	s, _ := e.Payload[key].(string)
	return s
}

// PayloadBool returns the bool stored under key, or false if absent or not a bool.
func (e Event) PayloadBool(key string) bool {
	b, _ := e.Payload[key].(bool)
	return b
}

// PayloadInt returns the integer stored under key. JSON-decoded numbers
// (float64) are accepted.
func (e Event) PayloadInt(key string) (int, bool) {
	switch v := e.Payload[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// MarshalEvent encodes an event as its compact JSON envelope.
func MarshalEvent(e Event) ([]byte, error) {
	e.Timestamp = e.Timestamp.UTC()
	return json.Marshal(e)
}

// UnmarshalEvent decodes and validates a JSON envelope.
func UnmarshalEvent(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	e.Timestamp = e.Timestamp.UTC()
	return e, nil
}
