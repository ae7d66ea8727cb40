// Package agent composes a runnable agent from validated configuration:
// tools, model, middlewares, and checkpointer resolve through their
// registries and wire into an execution graph.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agentloom/loom/pkg/checkpoint"
	"github.com/agentloom/loom/pkg/config"
	"github.com/agentloom/loom/pkg/graph"
	"github.com/agentloom/loom/pkg/llm"
	"github.com/agentloom/loom/pkg/middleware"
	"github.com/agentloom/loom/pkg/tool"
)

// Event is one increment of user-visible agent output.
type Event struct {
	Text string
	Err  error
}

// Agent is a configured conversational agent bound to an execution
// graph. It is safe for concurrent use across threads.
type Agent struct {
	name  string
	graph *graph.Graph
}

// New resolves every provider the configuration names and assembles the
// agent. Resolution order: tools, model, middlewares, checkpointer. Any
// resolution failure aborts composition.
func New(ctx context.Context, cfg *config.AgentConfig) (*Agent, error) {
	tools, err := tool.ResolveAll(ctx, cfg.ToolConfigs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tools: %w", err)
	}

	model, err := llm.Resolve(cfg.ModelName, cfg.Temperature)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve model: %w", err)
	}

	middlewares, err := middleware.ResolveAll(cfg.MiddlewareConfigs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve middlewares: %w", err)
	}

	saver, err := checkpoint.Resolve(cfg.CheckpointerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve checkpointer: %w", err)
	}

	slog.Info("Agent composed",
		"agent", cfg.Name,
		"model", cfg.ModelName,
		"tools", len(tools),
		"middlewares", len(middlewares))

	return &Agent{
		name:  cfg.Name,
		graph: graph.New(model, tools, cfg.SystemPrompt, saver, middlewares),
	}, nil
}

// Name returns the agent's configured name.
func (a *Agent) Name() string {
	return a.name
}

// Stream runs one user turn and emits agent-authored text as it is
// produced. Middleware output (summaries being generated) is filtered
// out; tool activity produces no text events.
func (a *Agent) Stream(ctx context.Context, threadID, input string) <-chan Event {
	out := make(chan Event, 16)
	go func() {
		defer close(out)
		for chunk := range a.graph.Stream(ctx, threadID, input) {
			if chunk.Err != nil {
				select {
				case out <- Event{Err: chunk.Err}:
				case <-ctx.Done():
				}
				return
			}
			if chunk.Text == "" {
				continue
			}
			if strings.HasPrefix(chunk.Node, middleware.SummarizationName) {
				continue
			}
			select {
			case out <- Event{Text: chunk.Text}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Invoke runs one user turn to completion and returns the full response.
// It drains the same stream path Stream exposes.
func (a *Agent) Invoke(ctx context.Context, threadID, input string) (string, error) {
	var b strings.Builder
	for event := range a.Stream(ctx, threadID, input) {
		if event.Err != nil {
			return b.String(), event.Err
		}
		b.WriteString(event.Text)
	}
	return b.String(), nil
}
