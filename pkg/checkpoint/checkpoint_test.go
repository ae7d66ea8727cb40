package checkpoint

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentloom/loom/pkg/config"
	"github.com/agentloom/loom/pkg/llm"
	"github.com/agentloom/loom/pkg/registry"
)

func sampleHistory() []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: "You help."},
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, Content: "hello"},
	}
}

func TestMemorySaver(t *testing.T) {
	ctx := context.Background()
	saver := NewMemorySaver()

	t.Run("unknown thread loads empty", func(t *testing.T) {
		msgs, err := saver.Load(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, msgs)
	})

	t.Run("save then load round trips", func(t *testing.T) {
		require.NoError(t, saver.Save(ctx, "t1", sampleHistory()))

		msgs, err := saver.Load(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, sampleHistory(), msgs)
	})

	t.Run("threads are isolated", func(t *testing.T) {
		require.NoError(t, saver.Save(ctx, "t2", sampleHistory()[:1]))

		msgs, err := saver.Load(ctx, "t1")
		require.NoError(t, err)
		assert.Len(t, msgs, 3)
	})

	t.Run("loaded slice is a copy", func(t *testing.T) {
		msgs, err := saver.Load(ctx, "t1")
		require.NoError(t, err)
		msgs[0].Content = "mutated"

		again, err := saver.Load(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, "You help.", again[0].Content)
	})
}

func TestSQLiteSaver(t *testing.T) {
	ctx := context.Background()

	saver, err := NewSQLite(&config.CheckpointerSpec{
		Type:   "sqlite",
		Config: map[string]any{"path": filepath.Join(t.TempDir(), "state.db")},
	})
	require.NoError(t, err)
	defer saver.Close()

	t.Run("round trip", func(t *testing.T) {
		require.NoError(t, saver.Save(ctx, "t1", sampleHistory()))

		msgs, err := saver.Load(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, sampleHistory(), msgs)
	})

	t.Run("save overwrites", func(t *testing.T) {
		require.NoError(t, saver.Save(ctx, "t1", sampleHistory()[:1]))

		msgs, err := saver.Load(ctx, "t1")
		require.NoError(t, err)
		assert.Len(t, msgs, 1)
	})

	t.Run("unknown thread loads empty", func(t *testing.T) {
		msgs, err := saver.Load(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, msgs)
	})
}

func TestNewSQLiteRequiresPath(t *testing.T) {
	_, err := NewSQLite(&config.CheckpointerSpec{Type: "sqlite"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path")
}

func TestNewPostgresRequiresConnectionString(t *testing.T) {
	_, err := NewPostgres(&config.CheckpointerSpec{Type: "postgres"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection_string")
}

func TestResolve(t *testing.T) {
	require.NoError(t, Register("memory", NewMemory))

	t.Run("nil spec defaults to memory", func(t *testing.T) {
		saver, err := Resolve(nil)
		require.NoError(t, err)
		assert.IsType(t, &MemorySaver{}, saver)
	})

	t.Run("unknown type errors", func(t *testing.T) {
		_, err := Resolve(&config.CheckpointerSpec{Type: "no-such-store"})
		require.Error(t, err)

		var unknownErr *registry.UnknownTypeError
		require.ErrorAs(t, err, &unknownErr)
		assert.Equal(t, "no-such-store", unknownErr.Type)
	})
}
