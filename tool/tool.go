// Package tool implements the capability layer the agent loop calls into:
// tool contracts (required input keys, required scopes, optional JSON schema),
// the scope policy gating execution, and the registry mapping names to tools.
package tool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/hupe1980/runmesh/core"
)

// Error codes carried by *ToolError.
const (
	CodeExecutionError = "EXECUTION_ERROR"
	CodePanic          = "PANIC"
)

// Handler is the side-effecting implementation behind a tool. It receives a
// payload that already passed the tool's scope and input checks.
type Handler func(tc *ToolContext, payload map[string]any) (map[string]any, error)

// Contract describes a tool to the registry and the planner. RequiredKeys
// must all be present in the payload and are checked in order; Scopes must all
// be granted by the execution's ScopePolicy. InputSchema is an optional JSON
// schema applied after the key check.
type Contract struct {
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	RequiredKeys []string       `json:"required_keys,omitempty"`
	Scopes       []string       `json:"scopes,omitempty"`
	InputSchema  map[string]any `json:"input_schema,omitempty"`
}

// ToolError represents a failure raised by a handler. The agent loop records
// it as an unsuccessful tool result instead of aborting the run.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Err     error  `json:"-"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Unwrap returns the handler's original error.
func (e *ToolError) Unwrap() error { return e.Err }

// Tool couples a Contract with its Handler.
type Tool struct {
	contract Contract
	handler  Handler
	schema   *jsonschema.Schema
}

// New builds a tool. It fails when the name or handler is missing or the
// input schema does not compile.
func New(contract Contract, handler Handler) (*Tool, error) {
	if contract.Name == "" {
		return nil, errors.New("tool name is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("tool %s: handler is required", contract.Name)
	}

	t := &Tool{contract: contract, handler: handler}
	if len(contract.InputSchema) > 0 {
		schema, err := compileSchema(contract.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", contract.Name, err)
		}
		t.schema = schema
	}

	return t, nil
}

// MustNew is like New but panics on error. Intended for package-level tool sets.
func MustNew(contract Contract, handler Handler) *Tool {
	t, err := New(contract, handler)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the registry key of the tool.
func (t *Tool) Name() string { return t.contract.Name }

// Contract returns a copy of the tool's contract.
func (t *Tool) Contract() Contract { return t.contract }

// Run checks the contract and then invokes the handler, returning its result unmodified.
//
// Order of checks:
//  1. policy.AssertAllowed(contract.Scopes) -> *core.ScopeDeniedError
//  2. every required key present, in order -> *core.MissingInputKeyError for the first absent key
//  3. input schema, if any -> *core.SchemaViolationError
//
// Handler errors (and panics) come back as *ToolError.
func (t *Tool) Run(tc *ToolContext, payload map[string]any, policy ScopePolicy) (map[string]any, error) {
	if err := policy.AssertAllowed(t.contract.Scopes); err != nil {
		return nil, err
	}

	for _, key := range t.contract.RequiredKeys {
		if _, ok := payload[key]; !ok {
			return nil, &core.MissingInputKeyError{Tool: t.contract.Name, Key: key}
		}
	}

	if t.schema != nil {
		if err := validateSchema(t.schema, payload); err != nil {
			return nil, &core.SchemaViolationError{Tool: t.contract.Name, Err: err}
		}
	}

	if tc == nil {
		tc = NewToolContext(context.Background())
	}

	return t.invoke(tc, payload)
}

func (t *Tool) invoke(tc *ToolContext, payload map[string]any) (out map[string]any, err error) {
	logger := tc.Logger()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &ToolError{Tool: t.contract.Name, Message: fmt.Sprint(r), Code: CodePanic}
			logger.Error("tool.call.panic", "tool", t.contract.Name, "panic", r)
		}
	}()

	logger.Debug("tool.call.start", "tool", t.contract.Name, "run_id", tc.RunID())

	out, err = t.handler(tc, payload)
	if err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) {
			logger.Error("tool.call.error", "tool", t.contract.Name, "error", toolErr.Message)
			return nil, toolErr
		}

		logger.Error("tool.call.error", "tool", t.contract.Name, "error", err.Error())

		return nil, &ToolError{Tool: t.contract.Name, Message: err.Error(), Code: CodeExecutionError, Err: err}
	}

	logger.Info("tool.call.success", "tool", t.contract.Name, "duration_ms", time.Since(start).Milliseconds())

	return out, nil
}
