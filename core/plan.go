package core

// PlanStep is one unit of work produced by a Planner. ToolName is empty for
// purely descriptive steps.
type PlanStep struct {
	Description string         `json:"description"`
	ToolName    string         `json:"tool_name,omitempty"`
	ToolInput   map[string]any `json:"tool_input,omitempty"`
}

// HasTool reports whether the step invokes a tool.
func (s PlanStep) HasTool() bool { return s.ToolName != "" }

// Planner turns a prompt into an ordered plan. Implementations must be
// deterministic: the same prompt always yields the same plan. A blank prompt
// yields an empty plan.
type Planner interface {
	PlanFromPrompt(prompt string) []PlanStep
}

// PlannerFunc adapts a plain function to the Planner interface.
type PlannerFunc func(prompt string) []PlanStep

// PlanFromPrompt calls f(prompt).
func (f PlannerFunc) PlanFromPrompt(prompt string) []PlanStep { return f(prompt) }
