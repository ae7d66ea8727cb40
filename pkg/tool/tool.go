// Package tool defines the callable tool abstraction, the builder
// registry that constructs tools from configuration, and the MCP toolset
// implementation.
package tool

import (
	"context"

	"github.com/agentloom/loom/pkg/llm"
)

// Tool is a callable capability exposed to the model.
type Tool interface {
	Name() string
	Description() string
	// Schema returns the JSON Schema for the tool's arguments.
	Schema() map[string]any
	// Call executes the tool and returns its textual result.
	Call(ctx context.Context, args map[string]any) (string, error)
}

// Definitions projects tools into the shape the model API expects.
func Definitions(tools []Tool) []llm.ToolDefinition {
	if len(tools) == 0 {
		return nil
	}
	defs := make([]llm.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		})
	}
	return defs
}
