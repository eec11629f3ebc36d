package sqlite

import (
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/runmesh/core"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLog_AppendAndList(t *testing.T) {
	l := newTestLog(t)

	e1 := core.NewEvent(core.EventRunQueued, "s1", "r1", map[string]any{"prompt": "fix bug"})
	e2 := core.NewEvent(core.EventRunQueued, "s2", "r2", nil)
	e3 := core.NewEvent(core.EventRunDispatchBlocked, "s1", "r1", map[string]any{"active": 1, "max": 1})

	for _, ev := range []core.Event{e1, e2, e3} {
		require.NoError(t, l.Append(ev))
	}

	got := slices.Collect(l.ListForSession("s1"))
	require.Len(t, got, 2)
	assert.Equal(t, e1.ID, got[0].ID)
	assert.Equal(t, "fix bug", got[0].PayloadString("prompt"))
	assert.Equal(t, core.EventRunDispatchBlocked, got[1].Type)
	assert.Equal(t, time.UTC, got[1].Timestamp.Location())

	active, ok := got[1].PayloadInt("active")
	assert.True(t, ok)
	assert.Equal(t, 1, active)
}

func TestLog_RejectsInvalidAndDuplicates(t *testing.T) {
	l := newTestLog(t)

	assert.ErrorIs(t, l.Append(core.Event{ID: "x"}), core.ErrInvalidEvent)

	ev := core.NewEvent(core.EventRunQueued, "s1", "r1", nil)
	require.NoError(t, l.Append(ev))
	assert.Error(t, l.Append(ev), "event ids are unique")
}

func TestLog_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")

	l, err := New(func(o *Options) { o.Path = path })
	require.NoError(t, err)
	require.NoError(t, l.Append(core.NewEvent(core.EventRunQueued, "s1", "r1", nil)))
	require.NoError(t, l.Close())

	reopened, err := New(func(o *Options) { o.Path = path })
	require.NoError(t, err)
	defer reopened.Close()

	assert.Len(t, slices.Collect(reopened.ListForSession("s1")), 1)
}

func TestLog_StoresFullEnvelope(t *testing.T) {
	l := newTestLog(t)

	ev := core.NewEvent(core.EventStepFinished, "s1", "r1", map[string]any{"tool": "repo.read", "ok": true})
	require.NoError(t, l.Append(ev))

	got := slices.Collect(l.ListForSession("s1"))
	require.Len(t, got, 1)
	assert.Equal(t, ev.ID, got[0].ID)
	assert.Equal(t, "r1", got[0].RunID)
	assert.True(t, ev.Timestamp.Equal(got[0].Timestamp))
	assert.True(t, got[0].PayloadBool("ok"))
}

func TestLog_CorruptRowEndsSequence(t *testing.T) {
	l := newTestLog(t)

	require.NoError(t, l.Append(core.NewEvent(core.EventRunQueued, "s1", "r1", nil)))
	_, err := l.db.Exec(
		"INSERT INTO events (id, ts, type, session_id, run_id, doc) VALUES (?, ?, ?, ?, ?, ?)",
		"evt_bad", time.Now().UTC().Format(time.RFC3339Nano), "run_queued", "s1", "r2", `{"id":"evt_bad"}`,
	)
	require.NoError(t, err)
	require.NoError(t, l.Append(core.NewEvent(core.EventRunQueued, "s1", "r3", nil)))

	got := slices.Collect(l.ListForSession("s1"))
	require.Len(t, got, 1)
	assert.Equal(t, "r1", got[0].RunID)
}
