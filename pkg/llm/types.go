// Package llm defines the language model abstraction, the message types
// exchanged with it, and the provider registry that builds concrete
// models from configuration.
package llm

import "context"

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model request to invoke a named tool. Arguments is the
// raw JSON the model produced; the executor decodes it against the
// tool's schema.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one turn in a conversation. Tool result messages carry the
// ToolCallID they answer; assistant messages may carry ToolCalls.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolDefinition describes a callable tool to the model. Parameters is
// a JSON Schema object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Chunk types emitted on a model stream.
const (
	ChunkText     = "text"
	ChunkToolCall = "tool_call"
	ChunkDone     = "done"
	ChunkError    = "error"
)

// StreamChunk is one increment of a streaming model response.
type StreamChunk struct {
	Type     string
	Text     string
	ToolCall *ToolCall
	Tokens   int
	Err      error
}

// Model generates completions. Stream returns a channel that is closed
// after a terminal "done" or "error" chunk.
type Model interface {
	Name() string
	Temperature() float64
	Stream(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error)
}

// Complete drains a full streaming response, returning the concatenated
// text and any tool calls. Used where the caller has no incremental
// consumer, such as summarization.
func Complete(ctx context.Context, m Model, messages []Message, tools []ToolDefinition) (string, []ToolCall, error) {
	ch, err := m.Stream(ctx, messages, tools)
	if err != nil {
		return "", nil, err
	}

	var (
		text      []byte
		toolCalls []ToolCall
	)
	for chunk := range ch {
		switch chunk.Type {
		case ChunkText:
			text = append(text, chunk.Text...)
		case ChunkToolCall:
			if chunk.ToolCall != nil {
				toolCalls = append(toolCalls, *chunk.ToolCall)
			}
		case ChunkError:
			return string(text), toolCalls, chunk.Err
		}
	}

	return string(text), toolCalls, nil
}
