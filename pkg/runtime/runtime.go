// Package runtime bootstraps an agent process: provider registration,
// configuration source selection, and agent creation.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/agentloom/loom/pkg/agent"
	"github.com/agentloom/loom/pkg/checkpoint"
	"github.com/agentloom/loom/pkg/config"
	"github.com/agentloom/loom/pkg/llm"
	"github.com/agentloom/loom/pkg/middleware"
	"github.com/agentloom/loom/pkg/tool"
)

var registerOnce sync.Once

// RegisterProviders installs the built-in provider set into the four
// registries. Registration is explicit and happens once per process;
// nothing registers itself from init.
func RegisterProviders() {
	registerOnce.Do(func() {
		mustRegister("llm", "openai", llm.Register, llm.Builder(func(modelName string, temperature float64) (llm.Model, error) {
			return llm.NewOpenAI(modelName, temperature)
		}))
		mustRegister("tool", "mcp", tool.Register, tool.Builder(tool.BuildMCP))
		mustRegister("middleware", "summarization", middleware.Register, middleware.Builder(middleware.BuildSummarization))
		mustRegister("checkpointer", "memory", checkpoint.Register, checkpoint.Builder(checkpoint.NewMemory))
		mustRegister("checkpointer", "sqlite", checkpoint.Register, checkpoint.Builder(checkpoint.NewSQLite))
		mustRegister("checkpointer", "postgres", checkpoint.Register, checkpoint.Builder(checkpoint.NewPostgres))

		slog.Debug("Registered built-in providers",
			"llm", llm.RegisteredProviders(),
			"tools", tool.RegisteredTypes(),
			"middlewares", middleware.RegisteredTypes(),
			"checkpointers", checkpoint.RegisteredTypes())
	})
}

func mustRegister[T any](kind, tag string, register func(string, T) error, builder T) {
	if err := register(tag, builder); err != nil {
		panic(fmt.Sprintf("failed to register %s %q: %v", kind, tag, err))
	}
}

// SourceOptions selects and parameterizes a configuration source.
type SourceOptions struct {
	SourceType  string
	ConfigPath  string
	PostgresDSN string
	AgentName   string
}

// NewSource validates the options and constructs the matching source.
func NewSource(opts SourceOptions) (config.Source, error) {
	switch opts.SourceType {
	case "filesystem":
		if opts.ConfigPath == "" {
			return nil, fmt.Errorf("filesystem source requires a config path")
		}
		return config.NewFilesystemSource(opts.ConfigPath), nil

	case "postgres":
		if opts.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres source requires a DSN")
		}
		if opts.AgentName == "" {
			return nil, fmt.Errorf("postgres source requires an agent name")
		}
		return config.NewPostgresSource(opts.PostgresDSN, opts.AgentName), nil

	default:
		return nil, fmt.Errorf("unknown source type %q (expected filesystem or postgres)", opts.SourceType)
	}
}

// CreateAgent runs the full bootstrap: register providers, load the
// configuration document, project it, and compose the agent.
func CreateAgent(ctx context.Context, source config.Source, suppressToolInjection bool) (*agent.Agent, error) {
	RegisterProviders()

	doc, err := source.Load(ctx, suppressToolInjection)
	if err != nil {
		return nil, fmt.Errorf("failed to load agent configuration: %w", err)
	}

	cfg := config.FromDocument(doc)
	slog.Info("Loaded agent configuration",
		"agent", cfg.Name,
		"model", cfg.ModelName,
		"tool_specs", len(cfg.ToolConfigs),
		"middleware_specs", len(cfg.MiddlewareConfigs))

	return agent.New(ctx, cfg)
}
