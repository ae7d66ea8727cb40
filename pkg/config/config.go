// Package config defines the agent configuration model and the sources
// that produce it.
//
// A Source assembles a Document (the raw, schema-checked shape); the
// Document is then projected into an AgentConfig, the validated and
// defaulted form consumed by agent composition.
package config

import "context"

// Defaults applied when a Document omits a field.
const (
	DefaultAgentName    = "simple-agent"
	DefaultModelName    = "gpt-4"
	DefaultSystemPrompt = "You are a helpful assistant."
)

// Source produces a complete agent configuration Document.
//
// The source is responsible for assembling the full document, including
// tool resolution rules such as MCP injection. suppressToolInjection
// prevents the source from injecting discovered tools; see the concrete
// sources for the per-source semantics of explicit tools.
type Source interface {
	Load(ctx context.Context, suppressToolInjection bool) (*Document, error)
}

// AgentConfig is the validated, defaulted projection of a Document.
// It is created once per agent startup and never mutated afterwards.
type AgentConfig struct {
	Name               string
	ModelName          string
	Temperature        float64
	SystemPrompt       string
	ToolConfigs        []ToolSpec
	CheckpointerConfig *CheckpointerSpec
	MiddlewareConfigs  []MiddlewareSpec
}

// FromDocument projects a Document into an AgentConfig, applying
// defaults. A nil tools sequence and an empty one are equivalent here:
// both yield an empty ToolConfigs slice.
func FromDocument(doc *Document) *AgentConfig {
	cfg := &AgentConfig{
		Name:         DefaultAgentName,
		ModelName:    DefaultModelName,
		Temperature:  0,
		SystemPrompt: DefaultSystemPrompt,
	}

	if doc == nil {
		return cfg
	}

	if doc.Name != "" {
		cfg.Name = doc.Name
	}
	if model := doc.ModelSpec(); model != nil {
		if name := model.ResolvedName(); name != "" {
			cfg.ModelName = name
		}
		cfg.Temperature = model.Temperature
	}
	if doc.Prompt != nil && *doc.Prompt != "" {
		cfg.SystemPrompt = *doc.Prompt
	}

	cfg.ToolConfigs = doc.Tools
	if cfg.ToolConfigs == nil {
		cfg.ToolConfigs = []ToolSpec{}
	}

	cfg.MiddlewareConfigs = doc.MiddlewareSpecs()
	if cfg.MiddlewareConfigs == nil {
		cfg.MiddlewareConfigs = []MiddlewareSpec{}
	}

	cfg.CheckpointerConfig = doc.Checkpointer

	return cfg
}
