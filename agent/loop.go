package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/runmesh/core"
	"github.com/hupe1980/runmesh/logging"
	"github.com/hupe1980/runmesh/tool"
)

const tracerName = "github.com/hupe1980/runmesh/agent"

// ToolLookup resolves tool names. *tool.Registry implements it.
type ToolLookup interface {
	Get(name string) (*tool.Tool, error)
}

// ToolObserver receives one callback per tool invocation.
type ToolObserver interface {
	ObserveToolCall(name string, success bool, d time.Duration)
}

// ToolObservers fans one tool call out to every observer in order.
type ToolObservers []ToolObserver

// ObserveToolCall implements ToolObserver.
func (o ToolObservers) ObserveToolCall(name string, success bool, d time.Duration) {
	for _, obs := range o {
		obs.ObserveToolCall(name, success, d)
	}
}

// Options configures a Loop.
type Options struct {
	Policy RunPolicy
	// Scopes is the capability set every tool call runs under.
	Scopes tool.ScopePolicy
	// Artifacts is exposed to tools through their ToolContext.
	Artifacts core.ArtifactStore
	// ToolTimeout bounds each tool invocation. Zero means no timeout.
	ToolTimeout time.Duration
	Observer    ToolObserver
	Tracer      trace.Tracer
	Logger      logging.Logger
}

// Loop executes runs. It holds no per-run state and may be shared.
type Loop struct {
	planner core.Planner
	tools   ToolLookup
	log     core.EventLog
	opts    Options
}

// NewLoop creates a loop. Defaults: DefaultRunPolicy, no granted scopes.
func NewLoop(planner core.Planner, tools ToolLookup, log core.EventLog, optFns ...func(o *Options)) *Loop {
	opts := Options{Policy: DefaultRunPolicy(), Scopes: tool.NewScopePolicy()}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Policy.MaxSteps <= 0 {
		opts.Policy.MaxSteps = DefaultMaxSteps
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	return &Loop{planner: planner, tools: tools, log: log, opts: opts}
}

// Run executes one run to completion:
//
//  1. run_started{prompt}
//  2. for each planned step, while the budget allows and no stop was requested:
//     step_started{description}, tool_result{name, output, success} for tool
//     steps, step_finished{description}
//  3. run_finished{stopped}
//
// A fatal error still records run_finished (with an "error" field) before it
// is returned together with the partial Result.
func (l *Loop) Run(ctx context.Context, in Input, stop *StopController) (Result, error) {
	if stop == nil {
		stop = NewStopController()
	}

	ctx, span := l.opts.Tracer.Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("session.id", in.SessionID),
		attribute.String("run.id", in.RunID),
	))
	defer span.End()

	logger := l.opts.Logger

	var res Result
	if err := l.emit(in, core.EventRunStarted, map[string]any{"prompt": in.Prompt}); err != nil {
		return res, l.fail(span, err)
	}

	plan := l.planner.PlanFromPrompt(in.Prompt)
	span.SetAttributes(attribute.Int("plan.steps", len(plan)))

	for _, step := range plan {
		if res.StepsExecuted >= l.opts.Policy.MaxSteps {
			logger.Debug("Step budget exhausted", "run_id", in.RunID, "max_steps", l.opts.Policy.MaxSteps)
			break
		}
		if ctx.Err() != nil {
			stop.RequestStop()
		}
		if stop.ShouldStop() {
			break
		}

		if err := l.runStep(ctx, in, step); err != nil {
			res.Stopped = stop.ShouldStop()
			if emitErr := l.emit(in, core.EventRunFinished, map[string]any{"stopped": res.Stopped, "error": err.Error()}); emitErr != nil {
				err = errors.Join(err, emitErr)
			}
			logger.Error("Run aborted", "run_id", in.RunID, "error", err)
			return res, l.fail(span, err)
		}
		res.StepsExecuted++
	}

	res.Stopped = stop.ShouldStop()
	if err := l.emit(in, core.EventRunFinished, map[string]any{"stopped": res.Stopped}); err != nil {
		return res, l.fail(span, err)
	}

	span.SetAttributes(attribute.Int("steps.executed", res.StepsExecuted), attribute.Bool("stopped", res.Stopped))
	logger.Info("Run finished", "run_id", in.RunID, "steps", res.StepsExecuted, "stopped", res.Stopped)

	return res, nil
}

// runStep returns only fatal errors.
func (l *Loop) runStep(ctx context.Context, in Input, step core.PlanStep) error {
	if err := l.emit(in, core.EventStepStarted, map[string]any{"description": step.Description}); err != nil {
		return err
	}

	if step.HasTool() {
		t, err := l.tools.Get(step.ToolName)
		if err != nil {
			return err
		}

		output, err := l.invoke(ctx, in, t, step.ToolInput)

		payload := map[string]any{"name": step.ToolName, "output": output, "success": err == nil}
		if err != nil {
			payload["error"] = err.Error()
		}
		if emitErr := l.emit(in, core.EventToolResult, payload); emitErr != nil {
			return emitErr
		}
		if err != nil && core.IsFatalRunError(err) {
			return err
		}
	}

	return l.emit(in, core.EventStepFinished, map[string]any{"description": step.Description})
}

func (l *Loop) invoke(ctx context.Context, in Input, t *tool.Tool, input map[string]any) (map[string]any, error) {
	ctx, span := l.opts.Tracer.Start(ctx, "agent.tool", trace.WithAttributes(attribute.String("tool.name", t.Name())))
	defer span.End()

	if l.opts.ToolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.opts.ToolTimeout)
		defer cancel()
	}

	tc := tool.NewToolContext(ctx, func(o *tool.ToolContextOptions) {
		o.SessionID = in.SessionID
		o.RunID = in.RunID
		o.RepoID = in.RepoID
		o.Logger = l.opts.Logger
		o.Artifacts = l.opts.Artifacts
	})

	if input == nil {
		input = map[string]any{}
	}

	start := time.Now()
	out, err := t.Run(tc, input, l.opts.Scopes)
	if l.opts.Observer != nil {
		l.opts.Observer.ObserveToolCall(t.Name(), err == nil, time.Since(start))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return out, err
}

func (l *Loop) emit(in Input, typ core.EventType, payload map[string]any) error {
	if err := l.log.Append(core.NewEvent(typ, in.SessionID, in.RunID, payload)); err != nil {
		return fmt.Errorf("append %s: %w", typ, err)
	}
	return nil
}

func (l *Loop) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
