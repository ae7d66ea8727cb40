package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestFilesystemSourceLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("explicit tools always win", func(t *testing.T) {
		dir := writeConfigDir(t, map[string]string{
			"agent.json": `{
				"name": "assistant",
				"model": {"name": "gpt-4o", "temperature": 0.2},
				"tools": [{"type": "mcp", "servers": {"search": {"command": "npx"}}}]
			}`,
			"mcp_servers.json": `{"other": {"command": "other-server"}}`,
		})

		doc, err := NewFilesystemSource(dir).Load(ctx, false)
		require.NoError(t, err)

		require.Len(t, doc.Tools, 1)
		assert.Contains(t, doc.Tools[0].Servers, "search")
		assert.NotContains(t, doc.Tools[0].Servers, "other")
	})

	t.Run("explicit tools survive suppression", func(t *testing.T) {
		dir := writeConfigDir(t, map[string]string{
			"agent.json": `{"name": "assistant", "tools": [{"type": "mcp", "servers": {"search": {"command": "npx"}}}]}`,
		})

		doc, err := NewFilesystemSource(dir).Load(ctx, true)
		require.NoError(t, err)

		require.Len(t, doc.Tools, 1)
		assert.Contains(t, doc.Tools[0].Servers, "search")
	})

	t.Run("explicit empty tools stay empty and present", func(t *testing.T) {
		dir := writeConfigDir(t, map[string]string{
			"agent.json":       `{"name": "assistant", "tools": []}`,
			"mcp_servers.json": `{"search": {"command": "npx"}}`,
		})

		doc, err := NewFilesystemSource(dir).Load(ctx, false)
		require.NoError(t, err)

		require.NotNil(t, doc.Tools)
		assert.Empty(t, doc.Tools)
	})

	t.Run("null tools key blocks injection", func(t *testing.T) {
		dir := writeConfigDir(t, map[string]string{
			"agent.json":       `{"name": "assistant", "tools": null}`,
			"mcp_servers.json": `{"search": {"command": "npx"}}`,
		})

		doc, err := NewFilesystemSource(dir).Load(ctx, false)
		require.NoError(t, err)

		assert.Nil(t, doc.Tools)
	})

	t.Run("suppression skips injection", func(t *testing.T) {
		dir := writeConfigDir(t, map[string]string{
			"agent.json":       `{"name": "assistant"}`,
			"mcp_servers.json": `{"search": {"command": "npx"}}`,
		})

		doc, err := NewFilesystemSource(dir).Load(ctx, true)
		require.NoError(t, err)

		assert.Nil(t, doc.Tools)
	})

	t.Run("mcp servers file injects single mcp spec", func(t *testing.T) {
		dir := writeConfigDir(t, map[string]string{
			"agent.json": `{"name": "assistant"}`,
			"mcp_servers.json": `{
				"search": {"transport": "stdio", "command": "npx", "args": ["-y", "search-server"]},
				"docs": {"transport": "http", "url": "http://docs:8000/mcp"}
			}`,
		})

		doc, err := NewFilesystemSource(dir).Load(ctx, false)
		require.NoError(t, err)

		require.Len(t, doc.Tools, 1)
		spec := doc.Tools[0]
		assert.Equal(t, "mcp", spec.Type)
		require.NotNil(t, spec.Enabled)
		assert.True(t, *spec.Enabled)
		assert.Len(t, spec.Servers, 2)
		assert.Equal(t, "npx", spec.Servers["search"].Command)
		assert.Equal(t, "http://docs:8000/mcp", spec.Servers["docs"].URL)
	})

	t.Run("no servers file leaves tools absent", func(t *testing.T) {
		dir := writeConfigDir(t, map[string]string{
			"agent.json": `{"name": "assistant"}`,
		})

		doc, err := NewFilesystemSource(dir).Load(ctx, false)
		require.NoError(t, err)

		assert.Nil(t, doc.Tools)
	})

	t.Run("missing directory is not found", func(t *testing.T) {
		_, err := NewFilesystemSource("/nonexistent/config/dir").Load(ctx, false)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("missing agent.json is not found", func(t *testing.T) {
		dir := t.TempDir()
		_, err := NewFilesystemSource(dir).Load(ctx, false)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("malformed agent.json", func(t *testing.T) {
		dir := writeConfigDir(t, map[string]string{
			"agent.json": `{not json`,
		})
		_, err := NewFilesystemSource(dir).Load(ctx, false)
		require.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("malformed mcp_servers.json", func(t *testing.T) {
		dir := writeConfigDir(t, map[string]string{
			"agent.json":       `{"name": "assistant"}`,
			"mcp_servers.json": `{not json`,
		})
		_, err := NewFilesystemSource(dir).Load(ctx, false)
		require.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("full document fields parse", func(t *testing.T) {
		dir := writeConfigDir(t, map[string]string{
			"agent.json": `{
				"name": "researcher",
				"description": "Research assistant",
				"model": {"name": "gpt-4o", "temperature": 0.5},
				"prompt": "You research things.",
				"middleware": [{"type": "summarization", "model": "gpt-4o-mini"}],
				"checkpointer": {"type": "sqlite", "path": "state.db"}
			}`,
		})

		doc, err := NewFilesystemSource(dir).Load(ctx, false)
		require.NoError(t, err)

		assert.Equal(t, "researcher", doc.Name)
		assert.Equal(t, "gpt-4o", doc.ModelSpec().ResolvedName())
		require.NotNil(t, doc.Prompt)
		assert.Equal(t, "You research things.", *doc.Prompt)
		require.Len(t, doc.MiddlewareSpecs(), 1)
		assert.Equal(t, "summarization", doc.MiddlewareSpecs()[0].Type)
		require.NotNil(t, doc.Checkpointer)
		assert.Equal(t, "sqlite", doc.Checkpointer.Type)
	})
}
