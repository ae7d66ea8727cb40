package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentloom/loom/pkg/checkpoint"
	"github.com/agentloom/loom/pkg/config"
	"github.com/agentloom/loom/pkg/graph"
	"github.com/agentloom/loom/pkg/llm"
	"github.com/agentloom/loom/pkg/middleware"
)

type cannedModel struct {
	text string
}

func (m *cannedModel) Name() string         { return "canned" }
func (m *cannedModel) Temperature() float64 { return 0 }

func (m *cannedModel) Stream(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, 2)
	ch <- llm.StreamChunk{Type: llm.ChunkText, Text: m.text}
	ch <- llm.StreamChunk{Type: llm.ChunkDone}
	close(ch)
	return ch, nil
}

type emittingMiddleware struct {
	name string
	text string
}

func (m *emittingMiddleware) Name() string { return m.name }
func (m *emittingMiddleware) Process(ctx context.Context, messages []llm.Message, emit func(string)) ([]llm.Message, error) {
	emit(m.text)
	return messages, nil
}

func newTestAgent(model llm.Model, mws ...middleware.Middleware) *Agent {
	return &Agent{
		name:  "test-agent",
		graph: graph.New(model, nil, "You help.", checkpoint.NewMemorySaver(), mws),
	}
}

func TestAgentStream_FiltersSummarizationOutput(t *testing.T) {
	a := newTestAgent(&cannedModel{text: "visible answer"},
		&emittingMiddleware{name: "SummarizationMiddleware", text: "hidden summary"})

	var texts []string
	for event := range a.Stream(context.Background(), "t1", "hi") {
		require.NoError(t, event.Err)
		texts = append(texts, event.Text)
	}

	assert.Equal(t, []string{"visible answer"}, texts)
}

func TestAgentStream_PassesOtherMiddlewareOutput(t *testing.T) {
	a := newTestAgent(&cannedModel{text: "answer"},
		&emittingMiddleware{name: "AnnouncerMiddleware", text: "announcement "})

	var joined string
	for event := range a.Stream(context.Background(), "t1", "hi") {
		require.NoError(t, event.Err)
		joined += event.Text
	}

	assert.Equal(t, "announcement answer", joined)
}

// burstModel streams a fixed number of one-character text chunks.
type burstModel struct {
	count int
}

func (m *burstModel) Name() string         { return "burst" }
func (m *burstModel) Temperature() float64 { return 0 }

func (m *burstModel) Stream(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, m.count+1)
	for i := 0; i < m.count; i++ {
		ch <- llm.StreamChunk{Type: llm.ChunkText, Text: "x"}
	}
	ch <- llm.StreamChunk{Type: llm.ChunkDone}
	close(ch)
	return ch, nil
}

func TestAgentStream_CancelUnblocksAbandonedStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const total = 100
	a := newTestAgent(&burstModel{count: total})
	ch := a.Stream(ctx, "t1", "hi")

	<-ch
	cancel()

	seen := 1
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				assert.Less(t, seen, total)
				return
			}
			seen++
		case <-timeout:
			t.Fatal("stream did not terminate after cancellation")
		}
	}
}

func TestAgentInvoke_JoinsStream(t *testing.T) {
	a := newTestAgent(&cannedModel{text: "full response"})

	text, err := a.Invoke(context.Background(), "t1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "full response", text)
}

var registerOnce sync.Once

func registerTestProviders(t *testing.T) {
	t.Helper()
	registerOnce.Do(func() {
		if err := llm.Register("openai", func(modelName string, temperature float64) (llm.Model, error) {
			return &cannedModel{text: "built"}, nil
		}); err != nil {
			t.Fatalf("register model builder: %v", err)
		}
		if err := checkpoint.Register("memory", checkpoint.NewMemory); err != nil {
			t.Fatalf("register checkpointer builder: %v", err)
		}
	})
}

func TestNew_ComposesFromConfig(t *testing.T) {
	registerTestProviders(t)

	cfg := config.FromDocument(&config.Document{
		Name:  "composed",
		Model: &config.ModelSpec{Name: "gpt-4o", Temperature: 0.2},
	})

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "composed", a.Name())

	text, err := a.Invoke(context.Background(), "t1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "built", text)
}

func TestNew_FailsOnUnknownCheckpointer(t *testing.T) {
	registerTestProviders(t)

	cfg := config.FromDocument(&config.Document{
		Name:         "broken",
		Checkpointer: &config.CheckpointerSpec{Type: "no-such-store"},
	})

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-such-store")
}
