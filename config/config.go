// Package config loads the runmesh YAML configuration. Values may reference
// environment variables (${VAR}); RUNMESH_* variables override individual
// fields after the file is parsed.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Dispatch     DispatchConfig     `yaml:"dispatch"`
	Agent        AgentConfig        `yaml:"agent"`
	Backend      BackendConfig      `yaml:"backend"`
	EventStore   EventStoreConfig   `yaml:"event_store"`
	Planner      PlannerConfig      `yaml:"planner"`
	Integrations IntegrationsConfig `yaml:"integrations"`
	Logging      LoggingConfig      `yaml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// Workers is the number of server processes sharing the event store.
	Workers int `yaml:"workers"`
	// RateLimit caps run creation requests per second. Zero disables it.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

type DispatchConfig struct {
	MaxActiveRuns int           `yaml:"max_active_runs"`
	TickInterval  time.Duration `yaml:"tick_interval"`
}

type AgentConfig struct {
	MaxSteps    int           `yaml:"max_steps"`
	ToolTimeout time.Duration `yaml:"tool_timeout"`
	Scopes      []string      `yaml:"scopes"`
}

type BackendConfig struct {
	Kind string `yaml:"kind"`
}

type EventStoreConfig struct {
	Kind string `yaml:"kind"`
	Path string `yaml:"path"`
}

type PlannerConfig struct {
	Kind    string `yaml:"kind"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

type IntegrationsConfig struct {
	SlackToken    string `yaml:"slack_token"`
	RepoRoot      string `yaml:"repo_root"`
	Repo          string `yaml:"repo"`
	DefaultBranch string `yaml:"default_branch"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Kinds accepted by Validate.
const (
	BackendLocal = "local"
	BackendAsync = "async"

	EventStoreMemory = "memory"
	EventStoreSQLite = "sqlite"

	PlannerRule      = "rule"
	PlannerAnthropic = "anthropic"
	PlannerOpenAI    = "openai"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads path, expands environment references, applies RUNMESH_*
// overrides and defaults, and validates the result. An empty path starts from
// defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if cfg, err = Parse(data); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse decodes a single YAML document after expanding ${VAR} references.
// Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: expected single document")
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Workers == 0 {
		cfg.Server.Workers = 1
	}
	if cfg.Server.RateLimit > 0 && cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = int(cfg.Server.RateLimit) + 1
	}
	if cfg.Dispatch.MaxActiveRuns == 0 {
		cfg.Dispatch.MaxActiveRuns = 2
	}
	if cfg.Dispatch.TickInterval == 0 {
		cfg.Dispatch.TickInterval = 500 * time.Millisecond
	}
	if cfg.Agent.MaxSteps == 0 {
		cfg.Agent.MaxSteps = 8
	}
	if cfg.Agent.ToolTimeout == 0 {
		cfg.Agent.ToolTimeout = 120 * time.Second
	}
	if cfg.Agent.Scopes == nil {
		cfg.Agent.Scopes = []string{"repo.read", "git.write"}
	}
	if cfg.Backend.Kind == "" {
		cfg.Backend.Kind = BackendLocal
	}
	if cfg.EventStore.Kind == "" {
		cfg.EventStore.Kind = EventStoreMemory
	}
	if cfg.EventStore.Kind == EventStoreSQLite && cfg.EventStore.Path == "" {
		cfg.EventStore.Path = "runmesh.db"
	}
	if cfg.Planner.Kind == "" {
		cfg.Planner.Kind = PlannerRule
	}
	if cfg.Integrations.Repo == "" {
		cfg.Integrations.Repo = "runmesh/workspace"
	}
	if cfg.Integrations.DefaultBranch == "" {
		cfg.Integrations.DefaultBranch = "main"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.Workers < 1 {
		errs = append(errs, fmt.Errorf("server.workers must be >= 1"))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("server.rate_limit must be >= 0"))
	}
	if c.Dispatch.MaxActiveRuns < 1 {
		errs = append(errs, fmt.Errorf("dispatch.max_active_runs must be >= 1"))
	}
	if c.Dispatch.TickInterval < 0 {
		errs = append(errs, fmt.Errorf("dispatch.tick_interval must be positive"))
	}
	if c.Agent.MaxSteps < 0 {
		errs = append(errs, fmt.Errorf("agent.max_steps must be >= 0"))
	}
	if !slices.Contains([]string{BackendLocal, BackendAsync}, c.Backend.Kind) {
		errs = append(errs, fmt.Errorf("unknown backend.kind %q", c.Backend.Kind))
	}
	if !slices.Contains([]string{EventStoreMemory, EventStoreSQLite}, c.EventStore.Kind) {
		errs = append(errs, fmt.Errorf("unknown event_store.kind %q", c.EventStore.Kind))
	}
	if !slices.Contains([]string{PlannerRule, PlannerAnthropic, PlannerOpenAI}, c.Planner.Kind) {
		errs = append(errs, fmt.Errorf("unknown planner.kind %q", c.Planner.Kind))
	}
	if c.Planner.Kind != PlannerRule && c.Planner.APIKey == "" {
		errs = append(errs, fmt.Errorf("planner.api_key is required for planner.kind %q", c.Planner.Kind))
	}
	if c.Server.Workers > 1 && c.EventStore.Kind == EventStoreMemory {
		errs = append(errs, fmt.Errorf("server.workers > 1 requires a shared event store, not %q", EventStoreMemory))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown logging.format %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// YAML renders the configuration.
func (c *Config) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func applyEnv(cfg *Config) error {
	var errs []error

	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, ok := os.LookupEnv(name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = n
		}
	}

	str("RUNMESH_HOST", &cfg.Server.Host)
	num("RUNMESH_PORT", &cfg.Server.Port)
	num("RUNMESH_WORKERS", &cfg.Server.Workers)
	num("RUNMESH_MAX_ACTIVE_RUNS", &cfg.Dispatch.MaxActiveRuns)
	num("RUNMESH_MAX_STEPS", &cfg.Agent.MaxSteps)
	str("RUNMESH_BACKEND", &cfg.Backend.Kind)
	str("RUNMESH_EVENT_STORE", &cfg.EventStore.Kind)
	str("RUNMESH_EVENT_STORE_PATH", &cfg.EventStore.Path)
	str("RUNMESH_PLANNER", &cfg.Planner.Kind)
	str("RUNMESH_PLANNER_MODEL", &cfg.Planner.Model)
	str("RUNMESH_PLANNER_API_KEY", &cfg.Planner.APIKey)
	str("RUNMESH_SLACK_TOKEN", &cfg.Integrations.SlackToken)
	str("RUNMESH_REPO_ROOT", &cfg.Integrations.RepoRoot)
	str("RUNMESH_LOG_LEVEL", &cfg.Logging.Level)
	str("RUNMESH_LOG_FORMAT", &cfg.Logging.Format)

	if v, ok := os.LookupEnv("RUNMESH_SCOPES"); ok {
		cfg.Agent.Scopes = nil
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cfg.Agent.Scopes = append(cfg.Agent.Scopes, s)
			}
		}
	}

	return errors.Join(errs...)
}
