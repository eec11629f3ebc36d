// Package eventlog provides EventLog implementations. InMemoryLog is the
// default process-local store; the sqlite subpackage persists envelopes to a
// SQLite database for inspection across restarts.
package eventlog
