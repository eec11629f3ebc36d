package builtin

import "github.com/hupe1980/runmesh/tool"

// Tool names and scopes.
const (
	CITriggerTool  = "ci.trigger"
	CITriggerScope = "ci.trigger"
)

// NewCITrigger returns the ci.trigger tool. The handler runs behind
// tool.WithLogging, so the output is {"tool": "ci.trigger", "result": {"pipeline", "status": "queued"}}.
func NewCITrigger() *tool.Tool {
	return tool.MustNew(tool.Contract{
		Name:         CITriggerTool,
		Description:  "Queue a CI pipeline run",
		RequiredKeys: []string{"pipeline"},
		Scopes:       []string{CITriggerScope},
	}, tool.WithLogging(CITriggerTool, func(_ *tool.ToolContext, payload map[string]any) (map[string]any, error) {
		return map[string]any{"pipeline": payload["pipeline"], "status": "queued"}, nil
	}))
}
