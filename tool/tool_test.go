package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/runmesh/artifact"
	"github.com/hupe1980/runmesh/core"
)

func echoTool(t *testing.T, called *int) *Tool {
	t.Helper()
	tl, err := New(Contract{
		Name:         "repo.read",
		RequiredKeys: []string{"path", "ref"},
		Scopes:       []string{"repo.read"},
	}, func(tc *ToolContext, payload map[string]any) (map[string]any, error) {
		*called++
		return map[string]any{"path": payload["path"]}, nil
	})
	require.NoError(t, err)
	return tl
}

func TestScopePolicy_AssertAllowedListsAllMissing(t *testing.T) {
	p := NewScopePolicy("repo.read")

	require.NoError(t, p.AssertAllowed([]string{"repo.read"}))
	require.NoError(t, p.AssertAllowed(nil))

	err := p.AssertAllowed([]string{"git.write", "repo.read", "ci.trigger", "git.write"})
	var sd *core.ScopeDeniedError
	require.True(t, errors.As(err, &sd))
	assert.Equal(t, []string{"git.write", "ci.trigger"}, sd.Missing)
}

func TestScopePolicy_Scopes(t *testing.T) {
	p := NewScopePolicy("b", "a", "b")
	assert.Equal(t, []string{"a", "b"}, p.Scopes())
	assert.True(t, p.Allows("a"))
	assert.False(t, NewScopePolicy().Allows("a"))
}

func TestTool_Run_ChecksScopesFirst(t *testing.T) {
	called := 0
	tl := echoTool(t, &called)

	_, err := tl.Run(nil, map[string]any{}, NewScopePolicy())
	assert.ErrorIs(t, err, core.ErrScopeDenied, "scope check precedes key validation")
	assert.Zero(t, called)
}

func TestTool_Run_ReportsFirstMissingKey(t *testing.T) {
	called := 0
	tl := echoTool(t, &called)

	_, err := tl.Run(nil, map[string]any{}, NewScopePolicy("repo.read"))
	var mk *core.MissingInputKeyError
	require.True(t, errors.As(err, &mk))
	assert.Equal(t, "path", mk.Key)

	_, err = tl.Run(nil, map[string]any{"path": "README.md"}, NewScopePolicy("repo.read"))
	require.True(t, errors.As(err, &mk))
	assert.Equal(t, "ref", mk.Key)
	assert.Zero(t, called)
}

func TestTool_Run_ReturnsHandlerResultUnmodified(t *testing.T) {
	called := 0
	tl := echoTool(t, &called)

	out, err := tl.Run(nil, map[string]any{"path": "README.md", "ref": "main"}, NewScopePolicy("repo.read"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"path": "README.md"}, out)
	assert.Equal(t, 1, called)
}

func TestTool_Run_HandlerErrorBecomesToolError(t *testing.T) {
	boom := errors.New("boom")
	tl := MustNew(Contract{Name: "fail"}, func(*ToolContext, map[string]any) (map[string]any, error) {
		return nil, boom
	})

	_, err := tl.Run(nil, nil, NewScopePolicy())
	var te *ToolError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, CodeExecutionError, te.Code)
	assert.ErrorIs(t, err, boom)
	assert.False(t, core.IsFatalRunError(err))
}

func TestTool_Run_RecoversPanic(t *testing.T) {
	tl := MustNew(Contract{Name: "panic"}, func(*ToolContext, map[string]any) (map[string]any, error) {
		panic("kaboom")
	})

	_, err := tl.Run(nil, nil, NewScopePolicy())
	var te *ToolError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, CodePanic, te.Code)
	assert.Contains(t, te.Message, "kaboom")
}

func TestTool_Run_InputSchema(t *testing.T) {
	tl, err := New(Contract{
		Name:         "trigger_pipeline",
		RequiredKeys: []string{"pipeline"},
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"pipeline": map[string]any{"type": "string", "minLength": 1},
				"retries":  map[string]any{"type": "integer"},
			},
			"required": []string{"pipeline"},
		},
	}, func(_ *ToolContext, p map[string]any) (map[string]any, error) {
		return map[string]any{"status": "queued"}, nil
	})
	require.NoError(t, err)

	out, err := tl.Run(nil, map[string]any{"pipeline": "build", "retries": 2}, NewScopePolicy())
	require.NoError(t, err)
	assert.Equal(t, "queued", out["status"])

	_, err = tl.Run(nil, map[string]any{"pipeline": ""}, NewScopePolicy())
	assert.ErrorIs(t, err, core.ErrSchemaViolation)
	assert.True(t, core.IsFatalRunError(err))

	_, err = tl.Run(nil, map[string]any{"pipeline": "build", "retries": "two"}, NewScopePolicy())
	assert.ErrorIs(t, err, core.ErrSchemaViolation)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Contract{}, func(*ToolContext, map[string]any) (map[string]any, error) { return nil, nil })
	assert.Error(t, err)

	_, err = New(Contract{Name: "x"}, nil)
	assert.Error(t, err)

	_, err = New(Contract{Name: "x", InputSchema: map[string]any{"type": 42}}, func(*ToolContext, map[string]any) (map[string]any, error) { return nil, nil })
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	called := 0
	tl := echoTool(t, &called)

	r, err := NewRegistry(tl)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())

	assert.ErrorIs(t, r.Register(echoTool(t, &called)), core.ErrDuplicateTool)

	got, err := r.Get("repo.read")
	require.NoError(t, err)
	assert.Same(t, tl, got)

	_, err = r.Get("missing")
	assert.ErrorIs(t, err, core.ErrUnknownTool)

	contracts := r.Contracts()
	require.Len(t, contracts, 1)
	assert.Equal(t, []string{"repo.read"}, contracts[0].Scopes)
}

func TestToolContext_Artifacts(t *testing.T) {
	store := artifact.NewInMemoryStore()
	tc := NewToolContext(context.Background(), func(o *ToolContextOptions) {
		o.SessionID = "sess_1"
		o.RunID = "run_1"
		o.Artifacts = store
	})

	require.NoError(t, tc.SaveArtifact("pr.md", []byte("body")))
	ids, err := tc.ListArtifacts()
	require.NoError(t, err)
	assert.Equal(t, []string{"pr.md"}, ids)

	bare := NewToolContext(context.Background())
	assert.ErrorIs(t, bare.SaveArtifact("x", nil), ErrNoArtifactStore)
	_, err = bare.ListArtifacts()
	assert.ErrorIs(t, err, ErrNoArtifactStore)
}

func TestWithLogging(t *testing.T) {
	h := WithLogging("send_metric", func(_ *ToolContext, p map[string]any) (map[string]any, error) {
		return map[string]any{"ok": true}, nil
	})

	out, err := h(NewToolContext(context.Background()), nil)
	require.NoError(t, err)
	assert.Equal(t, "send_metric", out["tool"])
	assert.Equal(t, map[string]any{"ok": true}, out["result"])

	failing := WithLogging("x", func(*ToolContext, map[string]any) (map[string]any, error) {
		return nil, errors.New("nope")
	})
	_, err = failing(NewToolContext(context.Background()), nil)
	assert.Error(t, err)
}
