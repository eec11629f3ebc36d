package planner

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/hupe1980/runmesh/core"
)

// Tool names the rule planner emits. They match the builtin tool set.
const (
	repoReadTool    = "repo.read"
	pullRequestTool = "github.pr.create"
	ciTriggerTool   = "ci.trigger"
)

// RuleOptions configures a RulePlanner.
type RuleOptions struct {
	// ReadPath is read by the second step of every non-empty plan.
	ReadPath string
	// Repo is the "owner/name" used for pull requests.
	Repo string
	// BaseBranch is the pull request target branch.
	BaseBranch string
	// BranchPrefix prefixes the generated head branch.
	BranchPrefix string
	// Pipeline is the CI pipeline triggered on CI intent.
	Pipeline string
}

// RulePlanner builds plans from simple prompt keywords:
//
//   - always: an analysis step and a repo.read of ReadPath
//   - "pr" / "pull request": a github.pr.create step
//   - "ci" / "pipeline": a ci.trigger step
type RulePlanner struct {
	opts RuleOptions
}

// NewRulePlanner creates a RulePlanner.
func NewRulePlanner(optFns ...func(o *RuleOptions)) *RulePlanner {
	opts := RuleOptions{
		ReadPath:     "README.md",
		Repo:         "runmesh/workspace",
		BaseBranch:   "main",
		BranchPrefix: "agent/",
		Pipeline:     "default",
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &RulePlanner{opts: opts}
}

// PlanFromPrompt implements core.Planner. Blank prompts give an empty plan.
func (p *RulePlanner) PlanFromPrompt(prompt string) []core.PlanStep {
	text := strings.TrimSpace(prompt)
	if text == "" {
		return nil
	}

	steps := []core.PlanStep{
		{Description: "Analyze prompt: " + text},
		{
			Description: "Read " + p.opts.ReadPath,
			ToolName:    repoReadTool,
			ToolInput:   map[string]any{"path": p.opts.ReadPath},
		},
	}

	words := tokenize(text)
	lower := strings.ToLower(text)

	if words["pr"] || strings.Contains(lower, "pull request") {
		steps = append(steps, core.PlanStep{
			Description: "Open pull request",
			ToolName:    pullRequestTool,
			ToolInput: map[string]any{
				"repo":  p.opts.Repo,
				"title": title(text),
				"head":  p.opts.BranchPrefix + branchSuffix(text),
				"base":  p.opts.BaseBranch,
			},
		})
	}

	if words["ci"] || words["pipeline"] {
		steps = append(steps, core.PlanStep{
			Description: "Trigger CI pipeline",
			ToolName:    ciTriggerTool,
			ToolInput:   map[string]any{"pipeline": p.opts.Pipeline},
		})
	}

	return steps
}

func tokenize(text string) map[string]bool {
	words := map[string]bool{}
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		words[w] = true
	}
	return words
}

func title(text string) string {
	const max = 72
	line, _, _ := strings.Cut(text, "\n")
	if r := []rune(line); len(r) > max {
		line = string(r[:max-3]) + "..."
	}
	return line
}

func branchSuffix(text string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	return fmt.Sprintf("%08x", h.Sum32())
}

var _ core.Planner = (*RulePlanner)(nil)
