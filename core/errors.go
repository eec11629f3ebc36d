package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownSession is returned when a session id does not reference a known session.
	ErrUnknownSession = errors.New("unknown session")
	// ErrUnknownRun is returned when a run id does not reference a known run.
	ErrUnknownRun = errors.New("unknown run")
	// ErrUnknownRepo is returned when a repo id does not reference a registered repository.
	ErrUnknownRepo = errors.New("unknown repo")
	// ErrUnknownTool is returned by registry lookups for unregistered tools.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrDuplicateTool is returned when registering a tool name twice.
	ErrDuplicateTool = errors.New("duplicate tool")
	// ErrInvalidEvent is returned when an event is not a well-formed envelope.
	ErrInvalidEvent = errors.New("invalid event")
	// ErrInvalidTransition is returned for run status changes the state machine forbids.
	ErrInvalidTransition = errors.New("invalid run status transition")
	// ErrRunTerminal is returned when mutating a run that already reached a terminal status.
	ErrRunTerminal = errors.New("run already terminal")
	// ErrScopeDenied is matched by every *ScopeDeniedError.
	ErrScopeDenied = errors.New("scope denied")
	// ErrMissingInputKey is matched by every *MissingInputKeyError.
	ErrMissingInputKey = errors.New("missing input key")
	// ErrSchemaViolation is matched by every *SchemaViolationError.
	ErrSchemaViolation = errors.New("schema violation")
)

// ScopeDeniedError lists every required scope that the policy does not grant.
type ScopeDeniedError struct {
	Missing []string
}

func (e *ScopeDeniedError) Error() string {
	return fmt.Sprintf("scope denied: missing %s", strings.Join(e.Missing, ", "))
}

// Unwrap allows errors.Is(err, ErrScopeDenied).
func (e *ScopeDeniedError) Unwrap() error { return ErrScopeDenied }

// MissingInputKeyError names the first required input key absent from a tool payload.
type MissingInputKeyError struct {
	Tool string
	Key  string
}

func (e *MissingInputKeyError) Error() string {
	if e.Tool == "" {
		return fmt.Sprintf("missing input key %q", e.Key)
	}
	return fmt.Sprintf("tool %s: missing input key %q", e.Tool, e.Key)
}

// Unwrap allows errors.Is(err, ErrMissingInputKey).
func (e *MissingInputKeyError) Unwrap() error { return ErrMissingInputKey }

// SchemaViolationError reports a payload that fails the tool's JSON schema.
type SchemaViolationError struct {
	Tool string
	Err  error
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("tool %s: payload violates input schema: %v", e.Tool, e.Err)
}

// Unwrap exposes both ErrSchemaViolation and the underlying validator error.
func (e *SchemaViolationError) Unwrap() []error { return []error{ErrSchemaViolation, e.Err} }

// IsFatalRunError reports whether err must abort an agent run instead of being
// recorded as an unsuccessful tool result. Unknown tools, scope denials and
// payload contract violations are fatal; anything else a handler returns is not.
func IsFatalRunError(err error) bool {
	return errors.Is(err, ErrUnknownTool) ||
		errors.Is(err, ErrScopeDenied) ||
		errors.Is(err, ErrMissingInputKey) ||
		errors.Is(err, ErrSchemaViolation)
}
