package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/runmesh/core"
	"github.com/hupe1980/runmesh/logging"
	"github.com/hupe1980/runmesh/model"
	"github.com/hupe1980/runmesh/tool"
)

// ModelOptions configures a ModelPlanner.
type ModelOptions struct {
	// Fallback plans when the model fails. Defaults to a RulePlanner.
	Fallback core.Planner
	// Tools are offered to the model; steps naming any other tool are dropped.
	Tools []tool.Contract
	// MaxSteps caps the plan length. Zero means no cap.
	MaxSteps int
	// Timeout bounds a single model call.
	Timeout time.Duration
	Logger  logging.Logger
}

// ModelPlanner plans with a language model. Plans are cached per trimmed
// prompt, including fallback plans, so the same prompt always yields the same
// plan. Concurrent calls for one prompt share a single model call; distinct
// prompts plan in parallel.
type ModelPlanner struct {
	model model.Model
	opts  ModelOptions
	group singleflight.Group

	mu    sync.Mutex
	cache map[string][]core.PlanStep
}

// NewModelPlanner creates a ModelPlanner backed by m.
func NewModelPlanner(m model.Model, optFns ...func(o *ModelOptions)) *ModelPlanner {
	opts := ModelOptions{Timeout: 30 * time.Second}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Fallback == nil {
		opts.Fallback = NewRulePlanner()
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	return &ModelPlanner{model: m, opts: opts, cache: make(map[string][]core.PlanStep)}
}

// PlanFromPrompt implements core.Planner.
func (p *ModelPlanner) PlanFromPrompt(prompt string) []core.PlanStep {
	text := strings.TrimSpace(prompt)
	if text == "" {
		return nil
	}

	if steps, ok := p.cached(text); ok {
		return cloneSteps(steps)
	}

	v, _, _ := p.group.Do(text, func() (any, error) {
		if steps, ok := p.cached(text); ok {
			return steps, nil
		}

		steps, err := p.ask(text)
		if err != nil {
			p.opts.Logger.Warn("Model planning failed, using fallback planner", "model", p.model.Info().Name, "error", err)
			steps = p.opts.Fallback.PlanFromPrompt(text)
		}

		p.mu.Lock()
		p.cache[text] = steps
		p.mu.Unlock()

		return steps, nil
	})

	return cloneSteps(v.([]core.PlanStep))
}

func (p *ModelPlanner) cached(text string) ([]core.PlanStep, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	steps, ok := p.cache[text]
	return steps, ok
}

type modelStep struct {
	Description string         `json:"description"`
	Tool        string         `json:"tool,omitempty"`
	Input       map[string]any `json:"input,omitempty"`
}

func (p *ModelPlanner) ask(prompt string) ([]core.PlanStep, error) {
	ctx := context.Background()
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	resp, err := p.model.Complete(ctx, model.Request{Instructions: p.instructions(), Prompt: prompt})
	if err != nil {
		return nil, err
	}

	raw, err := extractJSONArray(resp.Text)
	if err != nil {
		return nil, err
	}

	var parsed []modelStep
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}

	allowed := make(map[string]bool, len(p.opts.Tools))
	for _, c := range p.opts.Tools {
		allowed[c.Name] = true
	}

	steps := make([]core.PlanStep, 0, len(parsed))
	for _, s := range parsed {
		if strings.TrimSpace(s.Description) == "" {
			continue
		}
		if s.Tool != "" && !allowed[s.Tool] {
			p.opts.Logger.Debug("Dropping step with unoffered tool", "tool", s.Tool)
			continue
		}
		steps = append(steps, core.PlanStep{Description: s.Description, ToolName: s.Tool, ToolInput: s.Input})
		if p.opts.MaxSteps > 0 && len(steps) == p.opts.MaxSteps {
			break
		}
	}

	if len(steps) == 0 {
		return nil, errors.New("model returned an empty plan")
	}

	return steps, nil
}

func (p *ModelPlanner) instructions() string {
	var sb strings.Builder
	sb.WriteString("You plan work for a coding agent operating on a git repository.\n")
	sb.WriteString(`Reply with a JSON array only. Each element is {"description": string, "tool": string (optional), "input": object (optional)}.` + "\n")
	if len(p.opts.Tools) == 0 {
		sb.WriteString("No tools are available; emit descriptive steps only.\n")
		return sb.String()
	}

	sb.WriteString("Available tools:\n")
	for _, c := range p.opts.Tools {
		fmt.Fprintf(&sb, "- %s: %s (required input keys: %s)\n", c.Name, c.Description, strings.Join(c.RequiredKeys, ", "))
	}

	return sb.String()
}

func extractJSONArray(text string) (string, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end < start {
		return "", errors.New("no JSON array in model output")
	}
	return text[start : end+1], nil
}

func cloneSteps(steps []core.PlanStep) []core.PlanStep {
	if steps == nil {
		return nil
	}
	out := make([]core.PlanStep, len(steps))
	for i, s := range steps {
		out[i] = s
		if s.ToolInput != nil {
			out[i].ToolInput = maps.Clone(s.ToolInput)
		}
	}
	return out
}

var _ core.Planner = (*ModelPlanner)(nil)
