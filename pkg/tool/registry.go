package tool

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agentloom/loom/pkg/config"
	"github.com/agentloom/loom/pkg/registry"
)

// Builder constructs the tools described by one spec. A single spec may
// yield many tools (an MCP spec yields one per discovered server tool).
type Builder func(ctx context.Context, spec config.ToolSpec) ([]Tool, error)

var builders = registry.NewBuilders[Builder]("tool")

// Register adds a tool builder under the given type tag.
func Register(tag string, builder Builder) error {
	return builders.Register(tag, builder)
}

// ResolveAll builds tools for every enabled spec, preserving spec order.
// Disabled specs are skipped. An unknown spec type fails the whole
// resolution immediately; a half-equipped agent is worse than a loud
// startup failure.
func ResolveAll(ctx context.Context, specs []config.ToolSpec) ([]Tool, error) {
	var tools []Tool
	for _, spec := range specs {
		if !spec.IsEnabled() {
			slog.Info("Skipping disabled tool spec", "type", spec.Type)
			continue
		}

		builder, err := builders.Get(spec.Type)
		if err != nil {
			return nil, err
		}

		built, err := builder(ctx, spec)
		if err != nil {
			return nil, fmt.Errorf("failed to build %q tools: %w", spec.Type, err)
		}
		tools = append(tools, built...)
	}
	return tools, nil
}

// RegisteredTypes lists the registered tool types, sorted.
func RegisteredTypes() []string {
	return builders.Types()
}
