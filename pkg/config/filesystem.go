package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	agentConfigFile = "agent.json"
	mcpServersFile  = "mcp_servers.json"
)

// FilesystemSource loads configuration from JSON files in a directory:
//
//	<base>/agent.json          (required)
//	<base>/mcp_servers.json    (optional)
//
// When agent.json declares no tools and mcp_servers.json exists, a single
// "mcp" tool spec wrapping all declared servers is injected.
type FilesystemSource struct {
	basePath string
}

// NewFilesystemSource creates a source reading from the given directory.
func NewFilesystemSource(basePath string) *FilesystemSource {
	return &FilesystemSource{basePath: basePath}
}

// Load reads agent.json and applies the MCP tool injection rules:
//
//  1. A declared tools key in agent.json always wins, even when
//     injection is suppressed. Declared means present, including null
//     and [].
//  2. No declared tools and suppressToolInjection: document is returned
//     without a tools key.
//  3. No declared tools and mcp_servers.json present: one synthesized
//     "mcp" spec wrapping all declared servers.
//  4. Otherwise the document is returned without a tools key.
func (s *FilesystemSource) Load(ctx context.Context, suppressToolInjection bool) (*Document, error) {
	if _, err := os.Stat(s.basePath); err != nil {
		return nil, fmt.Errorf("%w: config directory does not exist: %s", ErrNotFound, s.basePath)
	}

	agentPath := filepath.Join(s.basePath, agentConfigFile)
	data, err := os.ReadFile(agentPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: required agent config not found: %s", ErrNotFound, agentPath)
		}
		return nil, fmt.Errorf("failed to read %s: %w", agentPath, err)
	}

	doc := &Document{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, agentPath, err)
	}

	if declaresTools(data) {
		return doc, nil
	}

	if suppressToolInjection {
		slog.Info("Tool injection suppressed, running without MCP servers")
		return doc, nil
	}

	serversPath := filepath.Join(s.basePath, mcpServersFile)
	serversData, err := os.ReadFile(serversPath)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("No MCP servers config file found, proceeding without MCP tools")
			return doc, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", serversPath, err)
	}

	var servers map[string]ServerConfig
	if err := json.Unmarshal(serversData, &servers); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, serversPath, err)
	}

	enabled := true
	doc.Tools = []ToolSpec{
		{
			Type:    "mcp",
			Enabled: &enabled,
			Servers: servers,
		},
	}

	return doc, nil
}

// declaresTools reports whether agent.json carries a tools key at all.
// A null value unmarshals to the same nil slice as an absent key, so
// presence has to be checked on the raw document.
func declaresTools(data []byte) bool {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return false
	}
	_, ok := raw["tools"]
	return ok
}
