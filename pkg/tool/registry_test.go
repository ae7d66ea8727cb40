package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentloom/loom/pkg/config"
	"github.com/agentloom/loom/pkg/registry"
)

type staticTool struct {
	name string
}

func (t *staticTool) Name() string           { return t.name }
func (t *staticTool) Description() string    { return "static" }
func (t *staticTool) Schema() map[string]any { return map[string]any{"type": "object"} }
func (t *staticTool) Call(ctx context.Context, args map[string]any) (string, error) {
	return "ok", nil
}

func registerStatic(t *testing.T, tag string, names ...string) {
	t.Helper()
	err := Register(tag, func(ctx context.Context, spec config.ToolSpec) ([]Tool, error) {
		tools := make([]Tool, 0, len(names))
		for _, name := range names {
			tools = append(tools, &staticTool{name: name})
		}
		return tools, nil
	})
	require.NoError(t, err)
}

func TestResolveAll(t *testing.T) {
	ctx := context.Background()

	t.Run("preserves spec order", func(t *testing.T) {
		registerStatic(t, "order-a", "a1", "a2")
		registerStatic(t, "order-b", "b1")

		tools, err := ResolveAll(ctx, []config.ToolSpec{
			{Type: "order-a"},
			{Type: "order-b"},
		})
		require.NoError(t, err)

		require.Len(t, tools, 3)
		assert.Equal(t, "a1", tools[0].Name())
		assert.Equal(t, "a2", tools[1].Name())
		assert.Equal(t, "b1", tools[2].Name())
	})

	t.Run("skips disabled specs", func(t *testing.T) {
		registerStatic(t, "skip-enabled", "kept")
		registerStatic(t, "skip-disabled", "dropped")

		disabled := false
		tools, err := ResolveAll(ctx, []config.ToolSpec{
			{Type: "skip-disabled", Enabled: &disabled},
			{Type: "skip-enabled"},
		})
		require.NoError(t, err)

		require.Len(t, tools, 1)
		assert.Equal(t, "kept", tools[0].Name())
	})

	t.Run("unknown type fails eagerly", func(t *testing.T) {
		registerStatic(t, "eager-known", "x")

		_, err := ResolveAll(ctx, []config.ToolSpec{
			{Type: "no-such-tool-type"},
			{Type: "eager-known"},
		})
		require.Error(t, err)

		var unknownErr *registry.UnknownTypeError
		require.ErrorAs(t, err, &unknownErr)
		assert.Equal(t, "no-such-tool-type", unknownErr.Type)
	})

	t.Run("builder failure propagates with type", func(t *testing.T) {
		require.NoError(t, Register("failing-type", func(ctx context.Context, spec config.ToolSpec) ([]Tool, error) {
			return nil, errors.New("boom")
		}))

		_, err := ResolveAll(ctx, []config.ToolSpec{{Type: "failing-type"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failing-type")
		assert.Contains(t, err.Error(), "boom")
	})

	t.Run("empty specs yield no tools", func(t *testing.T) {
		tools, err := ResolveAll(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, tools)
	})
}

func TestDefinitions(t *testing.T) {
	defs := Definitions([]Tool{&staticTool{name: "search"}})
	require.Len(t, defs, 1)
	assert.Equal(t, "search", defs[0].Name)
	assert.Equal(t, "static", defs[0].Description)
	assert.Equal(t, map[string]any{"type": "object"}, defs[0].Parameters)

	assert.Nil(t, Definitions(nil))
}
