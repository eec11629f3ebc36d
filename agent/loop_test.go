package agent

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/runmesh/core"
	"github.com/hupe1980/runmesh/eventlog"
	"github.com/hupe1980/runmesh/internal/testutil"
	"github.com/hupe1980/runmesh/tool"
)

var input = Input{SessionID: "sess_1", RunID: "run_1", RepoID: "repo_1", Prompt: "do it"}

func events(log *eventlog.InMemoryLog) []core.Event {
	return slices.Collect(log.ListForSession(input.SessionID))
}

func fixedPlan(steps ...core.PlanStep) core.Planner {
	return core.PlannerFunc(func(string) []core.PlanStep { return steps })
}

func registry(t *testing.T, tools ...*tool.Tool) *tool.Registry {
	t.Helper()
	r, err := tool.NewRegistry(tools...)
	require.NoError(t, err)
	return r
}

type observer struct {
	calls map[string]int
}

func (o *observer) ObserveToolCall(name string, _ bool, _ time.Duration) {
	if o.calls == nil {
		o.calls = map[string]int{}
	}
	o.calls[name]++
}

func TestLoop_EmptyPlan(t *testing.T) {
	log := eventlog.NewInMemoryLog()
	loop := NewLoop(fixedPlan(), registry(t), log)

	res, err := loop.Run(context.Background(), Input{SessionID: "sess_1", RunID: "run_1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, Result{StepsExecuted: 0, Stopped: false}, res)

	evs := events(log)
	assert.Equal(t, []core.EventType{core.EventRunStarted, core.EventRunFinished}, testutil.Types(evs))
	assert.Equal(t, false, evs[1].Payload["stopped"])
}

func TestLoop_ToolSteps(t *testing.T) {
	echo := testutil.NewRecordingTool(tool.Contract{Name: "echo", RequiredKeys: []string{"msg"}, Scopes: []string{"x"}}, nil)
	obs := &observer{}

	log := eventlog.NewInMemoryLog()
	loop := NewLoop(fixedPlan(
		core.PlanStep{Description: "think"},
		core.PlanStep{Description: "say", ToolName: "echo", ToolInput: map[string]any{"msg": "hi"}},
	), registry(t, echo.Tool()), log, func(o *Options) {
		o.Scopes = tool.NewScopePolicy("x")
		o.Observer = obs
	})

	res, err := loop.Run(context.Background(), input, NewStopController())
	require.NoError(t, err)
	assert.Equal(t, 2, res.StepsExecuted)
	assert.False(t, res.Stopped)
	assert.Equal(t, 1, echo.Calls())
	assert.Equal(t, 1, obs.calls["echo"])

	evs := events(log)
	assert.Equal(t, []core.EventType{
		core.EventRunStarted,
		core.EventStepStarted, core.EventStepFinished,
		core.EventStepStarted, core.EventToolResult, core.EventStepFinished,
		core.EventRunFinished,
	}, testutil.Types(evs))

	assert.Equal(t, "do it", evs[0].Payload["prompt"])
	assert.Equal(t, "say", evs[3].Payload["description"])

	result := evs[4]
	assert.Equal(t, "echo", result.Payload["name"])
	assert.Equal(t, true, result.Payload["success"])
	assert.Equal(t, map[string]any{"echo": map[string]any{"msg": "hi"}}, result.Payload["output"])
	assert.Equal(t, "run_1", result.RunID)
}

func TestLoop_HandlerFailureIsNotFatal(t *testing.T) {
	boom := testutil.NewRecordingTool(tool.Contract{Name: "boom"}, func(*tool.ToolContext, map[string]any) (map[string]any, error) {
		return nil, errors.New("exploded")
	})

	log := eventlog.NewInMemoryLog()
	loop := NewLoop(fixedPlan(
		core.PlanStep{Description: "a", ToolName: "boom"},
		core.PlanStep{Description: "b"},
	), registry(t, boom.Tool()), log)

	res, err := loop.Run(context.Background(), input, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.StepsExecuted)

	results := testutil.Filter(events(log), core.EventToolResult)
	require.Len(t, results, 1)
	assert.Equal(t, false, results[0].Payload["success"])
	assert.Contains(t, results[0].PayloadString("error"), "exploded")
}

func TestLoop_UnknownToolIsFatal(t *testing.T) {
	log := eventlog.NewInMemoryLog()
	loop := NewLoop(fixedPlan(
		core.PlanStep{Description: "a", ToolName: "missing"},
		core.PlanStep{Description: "b"},
	), registry(t), log)

	res, err := loop.Run(context.Background(), input, nil)
	require.ErrorIs(t, err, core.ErrUnknownTool)
	assert.Equal(t, 0, res.StepsExecuted)

	evs := events(log)
	assert.Equal(t, []core.EventType{core.EventRunStarted, core.EventStepStarted, core.EventRunFinished}, testutil.Types(evs))
	assert.NotEmpty(t, evs[2].PayloadString("error"))
}

func TestLoop_ScopeDeniedIsFatal(t *testing.T) {
	guarded := testutil.NewRecordingTool(tool.Contract{Name: "push", Scopes: []string{"git.write", "ci.trigger"}}, nil)

	log := eventlog.NewInMemoryLog()
	loop := NewLoop(fixedPlan(
		core.PlanStep{Description: "push", ToolName: "push"},
		core.PlanStep{Description: "never"},
	), registry(t, guarded.Tool()), log, func(o *Options) {
		o.Scopes = tool.NewScopePolicy("repo.read")
	})

	_, err := loop.Run(context.Background(), input, nil)

	var denied *core.ScopeDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, []string{"git.write", "ci.trigger"}, denied.Missing)
	assert.Equal(t, 0, guarded.Calls())

	evs := events(log)
	assert.Equal(t, []core.EventType{
		core.EventRunStarted, core.EventStepStarted, core.EventToolResult, core.EventRunFinished,
	}, testutil.Types(evs))
	assert.Equal(t, false, evs[2].Payload["success"])
}

func TestLoop_MissingKeyIsFatal(t *testing.T) {
	strict := testutil.NewRecordingTool(tool.Contract{Name: "strict", RequiredKeys: []string{"path"}}, nil)

	log := eventlog.NewInMemoryLog()
	loop := NewLoop(fixedPlan(core.PlanStep{Description: "s", ToolName: "strict"}), registry(t, strict.Tool()), log)

	_, err := loop.Run(context.Background(), input, nil)
	require.ErrorIs(t, err, core.ErrMissingInputKey)
	assert.Equal(t, 0, strict.Calls())
}

func TestLoop_StepBudget(t *testing.T) {
	steps := make([]core.PlanStep, 5)
	for i := range steps {
		steps[i] = core.PlanStep{Description: "step"}
	}

	log := eventlog.NewInMemoryLog()
	loop := NewLoop(fixedPlan(steps...), registry(t), log, func(o *Options) {
		o.Policy = RunPolicy{MaxSteps: 3}
	})

	res, err := loop.Run(context.Background(), input, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.StepsExecuted)
	assert.False(t, res.Stopped)
	assert.Len(t, testutil.Filter(events(log), core.EventStepStarted), 3)
}

func TestLoop_DefaultBudget(t *testing.T) {
	steps := make([]core.PlanStep, DefaultMaxSteps+4)
	for i := range steps {
		steps[i] = core.PlanStep{Description: "step"}
	}

	loop := NewLoop(fixedPlan(steps...), registry(t), eventlog.NewInMemoryLog())

	res, err := loop.Run(context.Background(), input, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxSteps, res.StepsExecuted)
}

func TestLoop_StopBeforeStart(t *testing.T) {
	stop := NewStopController()
	stop.RequestStop()

	log := eventlog.NewInMemoryLog()
	loop := NewLoop(fixedPlan(core.PlanStep{Description: "a"}), registry(t), log)

	res, err := loop.Run(context.Background(), input, stop)
	require.NoError(t, err)
	assert.Equal(t, Result{StepsExecuted: 0, Stopped: true}, res)

	evs := events(log)
	assert.Equal(t, []core.EventType{core.EventRunStarted, core.EventRunFinished}, testutil.Types(evs))
	assert.Equal(t, true, evs[1].Payload["stopped"])
}

func TestLoop_StopDuringStepCompletesStep(t *testing.T) {
	stop := NewStopController()
	stopper := testutil.NewRecordingTool(tool.Contract{Name: "stopper"}, func(*tool.ToolContext, map[string]any) (map[string]any, error) {
		stop.RequestStop()
		return map[string]any{}, nil
	})

	log := eventlog.NewInMemoryLog()
	loop := NewLoop(fixedPlan(
		core.PlanStep{Description: "first", ToolName: "stopper"},
		core.PlanStep{Description: "second"},
	), registry(t, stopper.Tool()), log)

	res, err := loop.Run(context.Background(), input, stop)
	require.NoError(t, err)
	assert.Equal(t, Result{StepsExecuted: 1, Stopped: true}, res)

	evs := events(log)
	assert.Equal(t, []core.EventType{
		core.EventRunStarted, core.EventStepStarted, core.EventToolResult, core.EventStepFinished, core.EventRunFinished,
	}, testutil.Types(evs))
}

func TestLoop_CanceledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	loop := NewLoop(fixedPlan(core.PlanStep{Description: "a"}), registry(t), eventlog.NewInMemoryLog())

	res, err := loop.Run(ctx, input, nil)
	require.NoError(t, err)
	assert.True(t, res.Stopped)
	assert.Equal(t, 0, res.StepsExecuted)
}

func TestLoop_ToolsSeeRunContext(t *testing.T) {
	var seen [3]string
	probe := testutil.NewRecordingTool(tool.Contract{Name: "probe"}, func(tc *tool.ToolContext, _ map[string]any) (map[string]any, error) {
		seen = [3]string{tc.SessionID(), tc.RunID(), tc.RepoID()}
		return nil, nil
	})

	loop := NewLoop(fixedPlan(core.PlanStep{Description: "p", ToolName: "probe"}), registry(t, probe.Tool()), eventlog.NewInMemoryLog())

	_, err := loop.Run(context.Background(), input, nil)
	require.NoError(t, err)
	assert.Equal(t, [3]string{"sess_1", "run_1", "repo_1"}, seen)
}

func TestToolObservers_FanOut(t *testing.T) {
	first, second := &observer{}, &observer{}
	echo := testutil.NewRecordingTool(tool.Contract{Name: "echo"}, nil)

	loop := NewLoop(fixedPlan(
		core.PlanStep{Description: "a", ToolName: "echo"},
		core.PlanStep{Description: "b", ToolName: "echo"},
	), registry(t, echo.Tool()), eventlog.NewInMemoryLog(), func(o *Options) {
		o.Observer = ToolObservers{first, second}
	})

	_, err := loop.Run(context.Background(), input, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, first.calls["echo"])
	assert.Equal(t, 2, second.calls["echo"])
}
