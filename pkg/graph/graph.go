// Package graph runs the agent execution loop: middleware passes over
// the conversation, streaming model turns, and tool execution, with
// history checkpointed per thread.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/agentloom/loom/pkg/checkpoint"
	"github.com/agentloom/loom/pkg/llm"
	"github.com/agentloom/loom/pkg/middleware"
	"github.com/agentloom/loom/pkg/tool"
)

// NodeModel and NodeTools tag chunks from the two built-in graph nodes.
// Middleware chunks are tagged with the middleware's own name.
const (
	NodeModel = "model"
	NodeTools = "tools"
)

// defaultMaxTurns bounds the model/tool loop within one invocation.
const defaultMaxTurns = 25

// Chunk is one increment of graph output. Text chunks carry the node
// that produced them so consumers can filter middleware output; tool
// chunks report an executed call. A chunk with Err set terminates the
// stream.
type Chunk struct {
	Node     string
	Text     string
	ToolCall *llm.ToolCall
	Err      error
}

// Graph wires a model, its tools, middlewares, and a checkpointer into
// a runnable conversation loop.
type Graph struct {
	model        llm.Model
	tools        []tool.Tool
	toolsByName  map[string]tool.Tool
	systemPrompt string
	saver        checkpoint.Saver
	middlewares  []middleware.Middleware
	maxTurns     int
}

// New assembles a graph. The tool list may be empty; the saver must not
// be nil.
func New(model llm.Model, tools []tool.Tool, systemPrompt string, saver checkpoint.Saver, middlewares []middleware.Middleware) *Graph {
	byName := make(map[string]tool.Tool, len(tools))
	for _, t := range tools {
		byName[t.Name()] = t
	}
	return &Graph{
		model:        model,
		tools:        tools,
		toolsByName:  byName,
		systemPrompt: systemPrompt,
		saver:        saver,
		middlewares:  middlewares,
		maxTurns:     defaultMaxTurns,
	}
}

// Stream runs one user turn against the thread's history and streams
// output chunks. The channel closes when the turn completes; history is
// persisted before close on the success path. A consumer that cancels
// the context may stop draining; the turn unwinds and the channel
// closes.
func (g *Graph) Stream(ctx context.Context, threadID, input string) <-chan Chunk {
	out := make(chan Chunk, 16)
	go func() {
		defer close(out)
		if err := g.run(ctx, threadID, input, out); err != nil {
			send(ctx, out, Chunk{Err: err})
		}
	}()
	return out
}

// send delivers a chunk unless the context ends first; it reports
// whether the chunk was delivered.
func send(ctx context.Context, out chan<- Chunk, c Chunk) bool {
	select {
	case out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

func (g *Graph) run(ctx context.Context, threadID, input string, out chan<- Chunk) error {
	messages, err := g.saver.Load(ctx, threadID)
	if err != nil {
		return fmt.Errorf("failed to load thread %q: %w", threadID, err)
	}

	if len(messages) == 0 && g.systemPrompt != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: g.systemPrompt})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: input})

	for _, mw := range g.middlewares {
		name := mw.Name()
		messages, err = mw.Process(ctx, messages, func(text string) {
			send(ctx, out, Chunk{Node: name, Text: text})
		})
		if err != nil {
			return fmt.Errorf("middleware %q: %w", name, err)
		}
	}

	defs := tool.Definitions(g.tools)

	for turn := 0; turn < g.maxTurns; turn++ {
		text, toolCalls, err := g.modelTurn(ctx, messages, defs, out)
		if err != nil {
			return err
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   text,
			ToolCalls: toolCalls,
		})

		if len(toolCalls) == 0 {
			if err := g.saver.Save(ctx, threadID, messages); err != nil {
				return fmt.Errorf("failed to save thread %q: %w", threadID, err)
			}
			return nil
		}

		for _, call := range toolCalls {
			if !send(ctx, out, Chunk{Node: NodeTools, ToolCall: &call}) {
				return ctx.Err()
			}
			messages = append(messages, g.executeTool(ctx, call))
		}
	}

	return fmt.Errorf("exceeded %d turns without completing", g.maxTurns)
}

func (g *Graph) modelTurn(ctx context.Context, messages []llm.Message, defs []llm.ToolDefinition, out chan<- Chunk) (string, []llm.ToolCall, error) {
	ch, err := g.model.Stream(ctx, messages, defs)
	if err != nil {
		return "", nil, fmt.Errorf("model stream failed: %w", err)
	}

	var (
		text      []byte
		toolCalls []llm.ToolCall
	)
	for chunk := range ch {
		switch chunk.Type {
		case llm.ChunkText:
			text = append(text, chunk.Text...)
			if !send(ctx, out, Chunk{Node: NodeModel, Text: chunk.Text}) {
				return "", nil, ctx.Err()
			}
		case llm.ChunkToolCall:
			if chunk.ToolCall != nil {
				toolCalls = append(toolCalls, *chunk.ToolCall)
			}
		case llm.ChunkError:
			return "", nil, chunk.Err
		}
	}

	return string(text), toolCalls, nil
}

// executeTool runs one call and always produces a tool message; failures
// are reported back to the model rather than aborting the turn.
func (g *Graph) executeTool(ctx context.Context, call llm.ToolCall) llm.Message {
	result := llm.Message{
		Role:       llm.RoleTool,
		ToolCallID: call.ID,
		Name:       call.Name,
	}

	t, ok := g.toolsByName[call.Name]
	if !ok {
		result.Content = fmt.Sprintf("Error: unknown tool %q", call.Name)
		return result
	}

	var args map[string]any
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			result.Content = fmt.Sprintf("Error: invalid arguments: %v", err)
			return result
		}
	}

	output, err := t.Call(ctx, args)
	if err != nil {
		slog.Warn("Tool call failed", "tool", call.Name, "error", err)
		result.Content = fmt.Sprintf("Error: %v", err)
		return result
	}

	result.Content = output
	return result
}
