package eventlog

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/runmesh/core"
)

func TestInMemoryLog_AppendAndList(t *testing.T) {
	log := NewInMemoryLog()

	e1 := core.NewEvent(core.EventRunQueued, "s1", "r1", map[string]any{"prompt": "a"})
	e2 := core.NewEvent(core.EventRunQueued, "s2", "r2", nil)
	e3 := core.NewEvent(core.EventRunDispatched, "s1", "r1", nil)

	for _, ev := range []core.Event{e1, e2, e3} {
		require.NoError(t, log.Append(ev))
	}

	got := slices.Collect(log.ListForSession("s1"))
	require.Len(t, got, 2)
	assert.Equal(t, e1.ID, got[0].ID)
	assert.Equal(t, e3.ID, got[1].ID)
	assert.Equal(t, 3, log.Len())

	assert.Empty(t, slices.Collect(log.ListForSession("unknown")))
}

func TestInMemoryLog_RejectsInvalid(t *testing.T) {
	log := NewInMemoryLog()

	err := log.Append(core.Event{Type: core.EventRunQueued})
	assert.ErrorIs(t, err, core.ErrInvalidEvent)
	assert.Zero(t, log.Len())
}

func TestInMemoryLog_SequenceIsRestartable(t *testing.T) {
	log := NewInMemoryLog()
	require.NoError(t, log.Append(core.NewEvent(core.EventRunQueued, "s1", "r1", nil)))

	seq := log.ListForSession("s1")
	assert.Len(t, slices.Collect(seq), 1)

	require.NoError(t, log.Append(core.NewEvent(core.EventRunDispatched, "s1", "r1", nil)))
	assert.Len(t, slices.Collect(seq), 2, "a new range observes later appends")
	assert.Len(t, slices.Collect(seq), 2)
}

func TestInMemoryLog_EarlyBreak(t *testing.T) {
	log := NewInMemoryLog()
	for i := 0; i < 5; i++ {
		require.NoError(t, log.Append(core.NewEvent(core.EventStepStarted, "s1", "r1", nil)))
	}

	count := 0
	for range log.ListForSession("s1") {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestInMemoryLog_StoredEventsAreIsolated(t *testing.T) {
	log := NewInMemoryLog()
	ev := core.NewEvent(core.EventRunQueued, "s1", "r1", map[string]any{"prompt": "a"})
	require.NoError(t, log.Append(ev))

	ev.Payload["prompt"] = "changed"
	got := slices.Collect(log.ListForSession("s1"))
	assert.Equal(t, "a", got[0].PayloadString("prompt"))

	got[0].Payload["prompt"] = "changed again"
	again := slices.Collect(log.ListForSession("s1"))
	assert.Equal(t, "a", again[0].PayloadString("prompt"))
}
