package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestModel(t *testing.T, serverURL string) *OpenAIModel {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_BASE_URL", serverURL)

	model, err := NewOpenAI("gpt-4o", 0.3)
	if err != nil {
		t.Fatalf("NewOpenAI() error = %v", err)
	}
	return model.(*OpenAIModel)
}

func collectChunks(t *testing.T, ch <-chan StreamChunk) []StreamChunk {
	t.Helper()
	var chunks []StreamChunk
	for chunk := range ch {
		chunks = append(chunks, chunk)
	}
	return chunks
}

func TestNewOpenAI_MissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := NewOpenAI("gpt-4o", 0)
	if err != ErrMissingAPIKey {
		t.Errorf("Expected ErrMissingAPIKey, got %v", err)
	}
}

func TestOpenAIModel_Accessors(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	model, err := NewOpenAI("gpt-4o", 0.7)
	if err != nil {
		t.Fatalf("NewOpenAI() error = %v", err)
	}
	if model.Name() != "gpt-4o" {
		t.Errorf("Name() = %q, want gpt-4o", model.Name())
	}
	if model.Temperature() != 0.7 {
		t.Errorf("Temperature() = %v, want 0.7", model.Temperature())
	}
}

func TestOpenAIModel_Stream_Text(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Unexpected auth header %q", auth)
		}

		var req openAIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		if !req.Stream {
			t.Error("Expected stream=true")
		}
		if req.Model != "gpt-4o" {
			t.Errorf("Expected model gpt-4o, got %s", req.Model)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\" world\"},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[],\"usage\":{\"total_tokens\":12}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	model := newTestModel(t, server.URL)
	ch, err := model.Stream(context.Background(), []Message{
		{Role: RoleUser, Content: "Hi"},
	}, nil)
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	chunks := collectChunks(t, ch)
	if len(chunks) != 3 {
		t.Fatalf("Expected 3 chunks, got %d: %+v", len(chunks), chunks)
	}
	if chunks[0].Type != ChunkText || chunks[0].Text != "Hello" {
		t.Errorf("Unexpected first chunk %+v", chunks[0])
	}
	if chunks[1].Text != " world" {
		t.Errorf("Unexpected second chunk %+v", chunks[1])
	}
	if chunks[2].Type != ChunkDone || chunks[2].Tokens != 12 {
		t.Errorf("Unexpected terminal chunk %+v", chunks[2])
	}
}

func TestOpenAIModel_Stream_ToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		if len(req.Tools) != 1 || req.Tools[0].Function.Name != "search" {
			t.Errorf("Expected search tool in request, got %+v", req.Tools)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"id\":\"call_1\",\"type\":\"function\",\"function\":{\"name\":\"search\",\"arguments\":\"{\\\"q\\\":\"}}]}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"function\":{\"arguments\":\"\\\"go\\\"}\"}}]}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"tool_calls\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	model := newTestModel(t, server.URL)
	ch, err := model.Stream(context.Background(), []Message{
		{Role: RoleUser, Content: "search go"},
	}, []ToolDefinition{
		{Name: "search", Description: "Searches", Parameters: map[string]any{"type": "object"}},
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	chunks := collectChunks(t, ch)
	var toolCall *ToolCall
	for _, chunk := range chunks {
		if chunk.Type == ChunkToolCall {
			toolCall = chunk.ToolCall
		}
	}
	if toolCall == nil {
		t.Fatalf("Expected tool call chunk, got %+v", chunks)
	}
	if toolCall.ID != "call_1" || toolCall.Name != "search" {
		t.Errorf("Unexpected tool call %+v", toolCall)
	}
	if toolCall.Arguments != `{"q":"go"}` {
		t.Errorf("Unexpected accumulated arguments %q", toolCall.Arguments)
	}
}

func TestOpenAIModel_Stream_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key","type":"invalid_request_error","code":"invalid_api_key"}}`)
	}))
	defer server.Close()

	model := newTestModel(t, server.URL)
	ch, err := model.Stream(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	chunks := collectChunks(t, ch)
	last := chunks[len(chunks)-1]
	if last.Type != ChunkError || last.Err == nil {
		t.Fatalf("Expected error chunk, got %+v", last)
	}
}

func TestComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"summary \"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"text\"},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	model := newTestModel(t, server.URL)
	text, toolCalls, err := Complete(context.Background(), model, []Message{{Role: RoleUser, Content: "summarize"}}, nil)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "summary text" {
		t.Errorf("Complete() text = %q", text)
	}
	if len(toolCalls) != 0 {
		t.Errorf("Expected no tool calls, got %+v", toolCalls)
	}
}

func TestRegistry(t *testing.T) {
	builder := func(modelName string, temperature float64) (Model, error) {
		return nil, fmt.Errorf("not built in test")
	}

	if err := Register("test-provider", builder); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if _, err := ResolveType("test-provider", "m", 0); err == nil || err.Error() != "not built in test" {
		t.Errorf("Expected builder to run, got %v", err)
	}

	if _, err := ResolveType("no-such-provider", "m", 0); err == nil {
		t.Error("Expected error for unknown provider type")
	}
}
