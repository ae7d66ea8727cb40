package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/agentloom/loom/pkg/config"
)

// mcpCallTimeout bounds a single tool invocation.
const mcpCallTimeout = 60 * time.Second

// mcpClient is the slice of the MCP client surface we use, abstracted
// for testability.
type mcpClient interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// BuildMCP is the builder for "mcp" tool specs. It connects to every
// declared server in name order, discovers the tools each exposes, and
// wraps them. Any server failing to connect or list fails the build.
func BuildMCP(ctx context.Context, spec config.ToolSpec) ([]Tool, error) {
	names := make([]string, 0, len(spec.Servers))
	for name := range spec.Servers {
		names = append(names, name)
	}
	sort.Strings(names)

	var tools []Tool
	for _, name := range names {
		serverTools, err := connectAndDiscover(ctx, name, spec.Servers[name])
		if err != nil {
			return nil, fmt.Errorf("mcp server %q: %w", name, err)
		}
		tools = append(tools, serverTools...)
	}
	return tools, nil
}

func connectAndDiscover(ctx context.Context, name string, server config.ServerConfig) ([]Tool, error) {
	client, err := connectServer(ctx, server)
	if err != nil {
		return nil, err
	}

	result, err := client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("list tools: %w", err)
	}

	tools := make([]Tool, 0, len(result.Tools))
	for _, t := range result.Tools {
		tools = append(tools, &mcpTool{
			serverName: name,
			client:     client,
			tool:       t,
		})
	}

	slog.Info("Discovered MCP tools",
		"server", name,
		"transport", transportFor(server),
		"count", len(result.Tools))

	return tools, nil
}

func transportFor(server config.ServerConfig) string {
	if server.Transport != "" {
		return server.Transport
	}
	if server.URL != "" {
		return "http"
	}
	return "stdio"
}

func connectServer(ctx context.Context, server config.ServerConfig) (mcpClient, error) {
	var client *mcpclient.Client

	switch transportFor(server) {
	case "stdio":
		c, err := mcpclient.NewStdioMCPClient(server.Command, envSlice(server.Env), server.Args...)
		if err != nil {
			return nil, fmt.Errorf("create stdio client: %w", err)
		}
		client = c

	case "http", "streamable_http", "streamable-http":
		t, err := transport.NewStreamableHTTP(server.URL)
		if err != nil {
			return nil, fmt.Errorf("create http transport: %w", err)
		}
		client = mcpclient.NewClient(t)
		if err := client.Start(ctx); err != nil {
			return nil, fmt.Errorf("start http client: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported transport %q", server.Transport)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "loom",
		Version: "1.0.0",
	}
	if _, err := client.Initialize(ctx, initReq); err != nil {
		client.Close()
		return nil, fmt.Errorf("initialize: %w", err)
	}

	return client, nil
}

func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	result := make([]string, 0, len(env))
	for k, v := range env {
		result = append(result, k+"="+v)
	}
	return result
}

// mcpTool adapts one discovered MCP tool to the Tool interface. Tool
// names pass through unchanged; servers own their namespaces.
type mcpTool struct {
	serverName string
	client     mcpClient
	tool       mcp.Tool
}

func (t *mcpTool) Name() string {
	return t.tool.Name
}

func (t *mcpTool) Description() string {
	if t.tool.Description != "" {
		return t.tool.Description
	}
	return fmt.Sprintf("Tool %q from MCP server %q", t.tool.Name, t.serverName)
}

func (t *mcpTool) Schema() map[string]any {
	data, err := json.Marshal(t.tool.InputSchema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		return map[string]any{"type": "object"}
	}
	return schema
}

func (t *mcpTool) Call(ctx context.Context, args map[string]any) (string, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = t.tool.Name
	req.Params.Arguments = args

	callCtx, cancel := context.WithTimeout(ctx, mcpCallTimeout)
	defer cancel()

	result, err := t.client.CallTool(callCtx, req)
	if err != nil {
		return "", fmt.Errorf("mcp tool %q: %w", t.tool.Name, err)
	}

	content := extractText(result)
	if result.IsError {
		return "", fmt.Errorf("mcp tool %q failed: %s", t.tool.Name, content)
	}
	return content, nil
}

// extractText flattens a CallToolResult into a string: text parts are
// joined, anything else is carried as JSON.
func extractText(result *mcp.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if data, err := json.Marshal(v); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.Join(parts, "\n")
}
