// Package sqlite provides a core.EventLog backed by SQLite using the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/hupe1980/runmesh/core"
	"github.com/hupe1980/runmesh/logging"
)

// Options configures the SQLite event log.
type Options struct {
	// Path is the database file. Defaults to ":memory:".
	Path   string
	Logger logging.Logger
}

// Log implements core.EventLog on a single SQLite table. Insertion order is
// the AUTOINCREMENT sequence, so it survives clock skew between appends.
type Log struct {
	db     *sql.DB
	logger logging.Logger
}

// New opens (or creates) the database and ensures the schema exists.
func New(optFns ...func(o *Options)) (*Log, error) {
	opts := Options{Path: ":memory:"}
	for _, fn := range optFns {
		fn(&opts)
	}

	db, err := sql.Open("sqlite", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	l := &Log{db: db, logger: logging.OrNoOp(opts.Logger)}
	if err := l.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return l, nil
}

func (l *Log) init() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			ts TEXT NOT NULL,
			type TEXT NOT NULL,
			session_id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			doc TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create events table: %w", err)
	}

	if _, err := l.db.Exec("CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, seq)"); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// Append validates and inserts ev.
func (l *Log) Append(ev core.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	doc, err := core.MarshalEvent(ev)
	if err != nil {
		return fmt.Errorf("%w: payload is not JSON-compatible: %v", core.ErrInvalidEvent, err)
	}

	_, err = l.db.Exec(
		"INSERT INTO events (id, ts, type, session_id, run_id, doc) VALUES (?, ?, ?, ?, ?, ?)",
		ev.ID, ev.Timestamp.UTC().Format(time.RFC3339Nano), string(ev.Type), ev.SessionID, ev.RunID, string(doc),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	return nil
}

// ListForSession queries the session's events in insertion order each time the
// sequence is ranged over. Payloads come back JSON-decoded, so numbers are float64.
// Query errors end the sequence early and are logged. The range holds the
// single connection, so callers must not Append from inside the loop body.
func (l *Log) ListForSession(sessionID string) iter.Seq[core.Event] {
	return func(yield func(core.Event) bool) {
		rows, err := l.db.QueryContext(context.Background(),
			"SELECT doc FROM events WHERE session_id = ? ORDER BY seq",
			sessionID,
		)
		if err != nil {
			l.logger.Error("Event query failed", "session_id", sessionID, "error", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			ev, err := scanEvent(rows)
			if err != nil {
				l.logger.Error("Event scan failed", "session_id", sessionID, "error", err)
				return
			}
			if !yield(ev) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			l.logger.Error("Event iteration failed", "session_id", sessionID, "error", err)
		}
	}
}

func scanEvent(rows *sql.Rows) (core.Event, error) {
	var doc string
	if err := rows.Scan(&doc); err != nil {
		return core.Event{}, err
	}

	ev, err := core.UnmarshalEvent([]byte(doc))
	if err != nil {
		return core.Event{}, fmt.Errorf("invalid stored event: %w", err)
	}
	return ev, nil
}

// Close releases the database handle.
func (l *Log) Close() error {
	return l.db.Close()
}

var _ core.EventLog = (*Log)(nil)
