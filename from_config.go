package runmesh

import (
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"

	"github.com/hupe1980/runmesh/agent"
	"github.com/hupe1980/runmesh/config"
	"github.com/hupe1980/runmesh/core"
	"github.com/hupe1980/runmesh/eventlog/sqlite"
	"github.com/hupe1980/runmesh/logging"
	"github.com/hupe1980/runmesh/metrics"
	"github.com/hupe1980/runmesh/model"
	anthropicmodel "github.com/hupe1980/runmesh/model/anthropic"
	openaimodel "github.com/hupe1980/runmesh/model/openai"
	"github.com/hupe1980/runmesh/planner"
	"github.com/hupe1980/runmesh/tool"
	"github.com/hupe1980/runmesh/tool/builtin"
)

// NewLoggerFromConfig builds the structured logger described by cfg.
func NewLoggerFromConfig(cfg config.LoggingConfig) (*logging.RunmeshLogger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	return logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    cfg.Format,
		Output:    os.Stderr,
		Component: "runmesh",
	}), nil
}

// FromConfig builds a Runmesh from a validated configuration. optFns run last
// and may override anything derived from cfg.
func FromConfig(cfg *config.Config, optFns ...func(o *Options)) (*Runmesh, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLoggerFromConfig(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tools, err := builtin.NewRegistry(func(o *builtin.Options) {
		if cfg.Integrations.RepoRoot != "" {
			o.Source = builtin.DirSource{Root: cfg.Integrations.RepoRoot}
		}
		if cfg.Integrations.SlackToken != "" {
			o.Chat = builtin.NewSlackClient(cfg.Integrations.SlackToken)
		}
	})
	if err != nil {
		return nil, err
	}

	var eventLog core.EventLog
	if cfg.EventStore.Kind == config.EventStoreSQLite {
		eventLog, err = sqlite.New(func(o *sqlite.Options) {
			o.Path = cfg.EventStore.Path
			o.Logger = logger.WithComponent("eventlog")
		})
		if err != nil {
			return nil, err
		}
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	return New(func(o *Options) {
		o.MaxActiveRuns = cfg.Dispatch.MaxActiveRuns
		o.Policy = agent.RunPolicy{MaxSteps: cfg.Agent.MaxSteps}
		o.Scopes = cfg.Agent.Scopes
		o.ToolTimeout = cfg.Agent.ToolTimeout
		o.Planner = newPlanner(cfg, tools, logger)
		o.Tools = tools
		o.EventLog = eventLog
		o.Async = cfg.Backend.Kind == config.BackendAsync
		o.Metrics = m
		o.Logger = logger

		for _, fn := range optFns {
			fn(o)
		}
	})
}

func newPlanner(cfg *config.Config, tools *tool.Registry, logger logging.Logger) core.Planner {
	rules := planner.NewRulePlanner(func(o *planner.RuleOptions) {
		o.Repo = cfg.Integrations.Repo
		o.BaseBranch = cfg.Integrations.DefaultBranch
	})

	var m model.Model
	switch cfg.Planner.Kind {
	case config.PlannerAnthropic:
		opts := []anthropicoption.RequestOption{anthropicoption.WithAPIKey(cfg.Planner.APIKey)}
		if cfg.Planner.BaseURL != "" {
			opts = append(opts, anthropicoption.WithBaseURL(cfg.Planner.BaseURL))
		}
		client := anthropic.NewClient(opts...)
		m = anthropicmodel.NewModelFromClient(&client, func(o *anthropicmodel.Options) {
			if cfg.Planner.Model != "" {
				o.Model = anthropic.Model(cfg.Planner.Model)
			}
		})
	case config.PlannerOpenAI:
		opts := []openaioption.RequestOption{openaioption.WithAPIKey(cfg.Planner.APIKey)}
		if cfg.Planner.BaseURL != "" {
			opts = append(opts, openaioption.WithBaseURL(cfg.Planner.BaseURL))
		}
		client := openai.NewClient(opts...)
		m = openaimodel.NewModelFromClient(&client, func(o *openaimodel.Options) {
			if cfg.Planner.Model != "" {
				o.Model = cfg.Planner.Model
			}
		})
	default:
		return rules
	}

	return planner.NewModelPlanner(m, func(o *planner.ModelOptions) {
		o.Fallback = rules
		o.Tools = tools.Contracts()
		o.MaxSteps = cfg.Agent.MaxSteps
		o.Logger = logger
	})
}
