package testutil

import (
	"sync"

	"github.com/hupe1980/runmesh/tool"
)

// RecordingTool wraps a handler and records every payload it receives.
type RecordingTool struct {
	mu    sync.Mutex
	calls []map[string]any
	tool  *tool.Tool
}

// NewRecordingTool builds a tool from contract. A nil handler echoes the payload.
func NewRecordingTool(contract tool.Contract, handler tool.Handler) *RecordingTool {
	rt := &RecordingTool{}
	if handler == nil {
		handler = func(_ *tool.ToolContext, payload map[string]any) (map[string]any, error) {
			return map[string]any{"echo": payload}, nil
		}
	}

	rt.tool = tool.MustNew(contract, func(tc *tool.ToolContext, payload map[string]any) (map[string]any, error) {
		rt.mu.Lock()
		rt.calls = append(rt.calls, payload)
		rt.mu.Unlock()
		return handler(tc, payload)
	})

	return rt
}

// Tool returns the wrapped tool for registration.
func (rt *RecordingTool) Tool() *tool.Tool { return rt.tool }

// Calls returns the number of handler invocations.
func (rt *RecordingTool) Calls() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.calls)
}

// Payloads returns the payloads received so far.
func (rt *RecordingTool) Payloads() []map[string]any {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]map[string]any(nil), rt.calls...)
}
