package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runmesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 1, cfg.Server.Workers)
	assert.Equal(t, 2, cfg.Dispatch.MaxActiveRuns)
	assert.Equal(t, 500*time.Millisecond, cfg.Dispatch.TickInterval)
	assert.Equal(t, 8, cfg.Agent.MaxSteps)
	assert.Equal(t, 120*time.Second, cfg.Agent.ToolTimeout)
	assert.Equal(t, []string{"repo.read", "git.write"}, cfg.Agent.Scopes)
	assert.Equal(t, BackendLocal, cfg.Backend.Kind)
	assert.Equal(t, EventStoreMemory, cfg.EventStore.Kind)
	assert.Equal(t, PlannerRule, cfg.Planner.Kind)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	t.Setenv("TEST_SLACK_TOKEN", "xoxb-123")

	path := writeConfig(t, `
server:
  port: 9000
dispatch:
  max_active_runs: 4
  tick_interval: 250ms
agent:
  max_steps: 3
  tool_timeout: 5s
  scopes: [repo.read, git.write]
backend:
  kind: async
event_store:
  kind: sqlite
integrations:
  slack_token: ${TEST_SLACK_TOKEN}
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Dispatch.MaxActiveRuns)
	assert.Equal(t, 250*time.Millisecond, cfg.Dispatch.TickInterval)
	assert.Equal(t, 3, cfg.Agent.MaxSteps)
	assert.Equal(t, 5*time.Second, cfg.Agent.ToolTimeout)
	assert.Equal(t, []string{"repo.read", "git.write"}, cfg.Agent.Scopes)
	assert.Equal(t, BackendAsync, cfg.Backend.Kind)
	assert.Equal(t, "runmesh.db", cfg.EventStore.Path)
	assert.Equal(t, "xoxb-123", cfg.Integrations.SlackToken)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RUNMESH_MAX_ACTIVE_RUNS", "7")
	t.Setenv("RUNMESH_PORT", "9999")
	t.Setenv("RUNMESH_BACKEND", "async")
	t.Setenv("RUNMESH_SCOPES", "repo.read, chat.write ,")

	path := writeConfig(t, "dispatch:\n  max_active_runs: 3\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Dispatch.MaxActiveRuns)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, BackendAsync, cfg.Backend.Kind)
	assert.Equal(t, []string{"repo.read", "chat.write"}, cfg.Agent.Scopes)
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Dispatch, cfg.Dispatch)
}

func TestLoad_BadEnvNumber(t *testing.T) {
	t.Setenv("RUNMESH_PORT", "eighty")

	_, err := Load("")
	assert.ErrorContains(t, err, "RUNMESH_PORT")
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("dispatch:\n  max_active: 1\n"))
	assert.Error(t, err)
}

func TestParse_RejectsMultipleDocuments(t *testing.T) {
	_, err := Parse([]byte("server:\n  port: 1\n---\nserver:\n  port: 2\n"))
	assert.ErrorContains(t, err, "single document")
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Config{}, *cfg)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"max active", func(c *Config) { c.Dispatch.MaxActiveRuns = -1 }, "max_active_runs"},
		{"max steps", func(c *Config) { c.Agent.MaxSteps = -1 }, "max_steps"},
		{"backend", func(c *Config) { c.Backend.Kind = "k8s" }, "backend.kind"},
		{"event store", func(c *Config) { c.EventStore.Kind = "redis" }, "event_store.kind"},
		{"planner", func(c *Config) { c.Planner.Kind = "magic" }, "planner.kind"},
		{"planner key", func(c *Config) { c.Planner.Kind = PlannerOpenAI }, "api_key"},
		{"workers need shared store", func(c *Config) { c.Server.Workers = 2 }, "shared event store"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestValidate_WorkersWithSQLite(t *testing.T) {
	cfg := Default()
	cfg.Server.Workers = 4
	cfg.EventStore.Kind = EventStoreSQLite
	assert.NoError(t, cfg.Validate())
}

func TestYAML(t *testing.T) {
	out, err := Default().YAML()
	require.NoError(t, err)

	cfg, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
