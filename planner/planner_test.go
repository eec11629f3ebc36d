package planner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/runmesh/core"
	"github.com/hupe1980/runmesh/model"
	"github.com/hupe1980/runmesh/tool"
)

func TestRulePlanner_Empty(t *testing.T) {
	p := NewRulePlanner()
	assert.Empty(t, p.PlanFromPrompt(""))
	assert.Empty(t, p.PlanFromPrompt("   \n\t"))
}

func TestRulePlanner_Basic(t *testing.T) {
	steps := NewRulePlanner().PlanFromPrompt("fix bug")

	require.Len(t, steps, 2)
	assert.Equal(t, "Analyze prompt: fix bug", steps[0].Description)
	assert.False(t, steps[0].HasTool())
	assert.Equal(t, "repo.read", steps[1].ToolName)
	assert.Equal(t, map[string]any{"path": "README.md"}, steps[1].ToolInput)
}

func TestRulePlanner_PullRequestIntent(t *testing.T) {
	p := NewRulePlanner(func(o *RuleOptions) { o.Repo = "acme/app" })

	steps := p.PlanFromPrompt("Fix the login bug and open a PR")
	require.Len(t, steps, 3)
	pr := steps[2]
	assert.Equal(t, "github.pr.create", pr.ToolName)
	assert.Equal(t, "acme/app", pr.ToolInput["repo"])
	assert.Equal(t, "main", pr.ToolInput["base"])
	assert.Regexp(t, `^agent/[0-9a-f]{8}$`, pr.ToolInput["head"])

	assert.Len(t, p.PlanFromPrompt("create a pull request"), 3)
	assert.Len(t, p.PlanFromPrompt("improve the prompt wording"), 2, "pr must match a whole word")
}

func TestRulePlanner_CIIntent(t *testing.T) {
	steps := NewRulePlanner().PlanFromPrompt("bump deps then run the CI pipeline")
	require.Len(t, steps, 3)
	assert.Equal(t, "ci.trigger", steps[2].ToolName)
}

func TestRulePlanner_LongTitleIsTruncated(t *testing.T) {
	long := "open pr " + "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	steps := NewRulePlanner().PlanFromPrompt(long)
	require.Len(t, steps, 3)
	assert.Len(t, []rune(steps[2].ToolInput["title"].(string)), 72)
}

func TestRulePlanner_Deterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)
	p := NewRulePlanner()

	properties.Property("same prompt yields the same plan", prop.ForAll(
		func(prompt string) bool {
			a := p.PlanFromPrompt(prompt)
			b := p.PlanFromPrompt(prompt)
			if len(a) != len(b) {
				return false
			}
			for i := range a {
				if a[i].Description != b[i].Description || a[i].ToolName != b[i].ToolName {
					return false
				}
			}
			return true
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func offered() []tool.Contract {
	return []tool.Contract{{Name: "repo.read", Description: "read", RequiredKeys: []string{"path"}}}
}

func TestModelPlanner_ParsesAndFilters(t *testing.T) {
	m := model.NewMockModel("m")
	m.AddResponse("fix bug", "Here is the plan:\n"+`[
		{"description": "Inspect", "tool": "repo.read", "input": {"path": "main.go"}},
		{"description": "Delete everything", "tool": "shell.exec", "input": {"cmd": "rm -rf /"}},
		{"description": "Summarize"}
	]`)

	p := NewModelPlanner(m, func(o *ModelOptions) { o.Tools = offered() })
	steps := p.PlanFromPrompt("fix bug")

	require.Len(t, steps, 2)
	assert.Equal(t, "repo.read", steps[0].ToolName)
	assert.Equal(t, "main.go", steps[0].ToolInput["path"])
	assert.Equal(t, "Summarize", steps[1].Description)
}

func TestModelPlanner_MemoizesPerPrompt(t *testing.T) {
	m := model.NewMockModel("m")
	m.AddResponse("fix bug", `[{"description": "Inspect"}]`)
	p := NewModelPlanner(m)

	first := p.PlanFromPrompt("fix bug")
	first[0].Description = "mutated"
	second := p.PlanFromPrompt("  fix bug  ")

	assert.Equal(t, "Inspect", second[0].Description)
	assert.Equal(t, 1, m.Calls())
}

func TestModelPlanner_FallsBack(t *testing.T) {
	m := model.NewMockModel("m")
	m.FailWith(errors.New("unavailable"))
	p := NewModelPlanner(m)

	steps := p.PlanFromPrompt("fix bug")
	assert.Equal(t, NewRulePlanner().PlanFromPrompt("fix bug"), steps)

	m.FailWith(nil)
	assert.Equal(t, steps, p.PlanFromPrompt("fix bug"), "fallback plans are cached too")
	assert.Equal(t, 1, m.Calls())
}

func TestModelPlanner_InvalidOutputFallsBack(t *testing.T) {
	m := model.NewMockModel("m")
	m.AddResponse("a", "no json here")
	m.AddResponse("b", "[]")
	m.AddResponse("c", "[{\"description\": ")

	p := NewModelPlanner(m, func(o *ModelOptions) {
		o.Fallback = NewRulePlanner(func(ro *RuleOptions) { ro.ReadPath = "CONTRIBUTING.md" })
	})

	for _, prompt := range []string{"a", "b", "c"} {
		steps := p.PlanFromPrompt(prompt)
		require.Len(t, steps, 2, prompt)
		assert.Equal(t, "CONTRIBUTING.md", steps[1].ToolInput["path"])
	}
}

func TestModelPlanner_EmptyPromptSkipsModel(t *testing.T) {
	m := model.NewMockModel("m")
	assert.Empty(t, NewModelPlanner(m).PlanFromPrompt(" "))
	assert.Zero(t, m.Calls())
}

func TestModelPlanner_MaxSteps(t *testing.T) {
	m := model.NewMockModel("m")
	m.AddResponse("x", `[{"description": "1"}, {"description": "2"}, {"description": "3"}]`)

	steps := NewModelPlanner(m, func(o *ModelOptions) { o.MaxSteps = 2 }).PlanFromPrompt("x")
	assert.Len(t, steps, 2)
}

// gatedModel blocks completions for the gated prompt until release is closed.
type gatedModel struct {
	gated   string
	entered chan struct{}
	release chan struct{}
	once    sync.Once

	mu    sync.Mutex
	calls map[string]int
}

func (g *gatedModel) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	g.mu.Lock()
	g.calls[req.Prompt]++
	g.mu.Unlock()

	if req.Prompt == g.gated {
		g.once.Do(func() { close(g.entered) })
		select {
		case <-g.release:
		case <-ctx.Done():
			return model.Response{}, ctx.Err()
		}
	}

	return model.Response{Text: `[{"description": "` + req.Prompt + `"}]`}, nil
}

func (g *gatedModel) Info() model.Info { return model.Info{Name: "gated", Provider: "test"} }

func (g *gatedModel) callsFor(prompt string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[prompt]
}

func TestModelPlanner_ConcurrentPrompts(t *testing.T) {
	m := &gatedModel{gated: "slow", entered: make(chan struct{}), release: make(chan struct{}), calls: map[string]int{}}
	p := NewModelPlanner(m)

	var wg sync.WaitGroup
	results := make([][]core.PlanStep, 4)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = p.PlanFromPrompt("slow")
	}()
	<-m.entered

	fast := make(chan []core.PlanStep, 1)
	go func() { fast <- p.PlanFromPrompt("fast") }()

	select {
	case steps := <-fast:
		require.Len(t, steps, 1)
		assert.Equal(t, "fast", steps[0].Description)
	case <-time.After(5 * time.Second):
		close(m.release)
		t.Fatal("a distinct prompt waited for the in-flight model call")
	}

	for i := 1; i < len(results); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = p.PlanFromPrompt(" slow ")
		}()
	}

	close(m.release)
	wg.Wait()

	assert.Equal(t, 1, m.callsFor("slow"))
	for _, steps := range results {
		require.Len(t, steps, 1)
		assert.Equal(t, "slow", steps[0].Description)
	}
}
