// Package mcpserver exposes an agent as an MCP tool server over
// streamable HTTP, with instance registration and heartbeating against
// the control plane so peers can discover a live endpoint.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"

	"github.com/agentloom/loom/pkg/agent"
	"github.com/agentloom/loom/pkg/config"
	"github.com/agentloom/loom/pkg/runtime"
)

const (
	defaultPort              = 8000
	defaultHeartbeatInterval = 15 * time.Minute
	defaultThreadID          = "default"
)

// Options configures a Server. Zero values fall back to the environment
// and then to defaults.
type Options struct {
	Source    config.Source
	AgentName string

	// Hostname and Port form the advertised endpoint URL. Hostname
	// falls back to AGENT_HOSTNAME, then os.Hostname. Port falls back
	// to MCP_INTERNAL_PORT, then 8000.
	Hostname string
	Port     int

	// PostgresDSN enables instance registration and heartbeating when
	// set. Filesystem-backed servers leave it empty and skip both.
	PostgresDSN string

	// HeartbeatInterval falls back to HEARTBEAT_INTERVAL_SECONDS, then
	// fifteen minutes.
	HeartbeatInterval time.Duration

	// SuppressToolInjection controls nested tool discovery when the
	// served agent's configuration loads. Serving with injection
	// enabled lets an exposed agent use its own tools.
	SuppressToolInjection bool
}

// Server hosts one agent behind a "chat" MCP tool. The agent is created
// lazily on first use so the process comes up and registers its endpoint
// even while upstream dependencies are still starting.
type Server struct {
	opts      Options
	endpoint  string
	instances *InstanceRegistry

	agentMu sync.Mutex
	agent   atomic.Pointer[agent.Agent]
}

// New resolves defaults and builds the server.
func New(opts Options) (*Server, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("mcp server requires a configuration source")
	}

	if opts.Hostname == "" {
		opts.Hostname = os.Getenv("AGENT_HOSTNAME")
	}
	if opts.Hostname == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("failed to determine hostname: %w", err)
		}
		opts.Hostname = hostname
	}

	if opts.Port == 0 {
		opts.Port = envInt("MCP_INTERNAL_PORT", defaultPort)
	}
	if opts.HeartbeatInterval == 0 {
		opts.HeartbeatInterval = time.Duration(envInt("HEARTBEAT_INTERVAL_SECONDS", int(defaultHeartbeatInterval.Seconds()))) * time.Second
	}

	s := &Server{
		opts:     opts,
		endpoint: fmt.Sprintf("http://%s:%d/mcp", opts.Hostname, opts.Port),
	}

	if opts.PostgresDSN != "" && opts.AgentName != "" {
		s.instances = NewInstanceRegistry(opts.PostgresDSN, opts.AgentName, s.endpoint)
	}

	return s, nil
}

func envInt(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
		slog.Warn("Ignoring non-numeric environment value", "key", key)
	}
	return fallback
}

// Endpoint returns the URL advertised to the control plane.
func (s *Server) Endpoint() string {
	return s.endpoint
}

// Run serves until the context is canceled. Instance registration and
// heartbeating run alongside the HTTP listener; their failures are
// logged, never fatal. The HTTP listener failing is fatal.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.opts.Port),
		Handler: s.router(),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("MCP server listening", "addr", httpServer.Addr, "endpoint", s.endpoint)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if s.instances != nil {
		g.Go(func() error {
			s.instances.Run(ctx, s.opts.HeartbeatInterval)
			return nil
		})
	}

	return g.Wait()
}

func (s *Server) router() http.Handler {
	mcpServer := server.NewMCPServer("loom", "1.0.0")

	chatTool := mcp.NewTool("chat",
		mcp.WithDescription(s.chatDescription()),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("The message to send to the agent"),
		),
		mcp.WithString("thread_id",
			mcp.Description("Conversation thread identifier; reuse to continue a conversation"),
		),
	)
	mcpServer.AddTool(chatTool, s.handleChat)

	streamable := server.NewStreamableHTTPServer(mcpServer,
		server.WithEndpointPath("/mcp"),
	)

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Mount("/mcp", streamable)
	return r
}

func (s *Server) chatDescription() string {
	if s.opts.AgentName != "" {
		return fmt.Sprintf("Chat with the %q agent", s.opts.AgentName)
	}
	return "Chat with the agent"
}

func (s *Server) handleChat(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message, err := request.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	threadID := request.GetString("thread_id", defaultThreadID)

	a, err := s.getAgent(ctx)
	if err != nil {
		return nil, fmt.Errorf("agent unavailable: %w", err)
	}

	text, err := a.Invoke(ctx, threadID, message)
	if err != nil {
		slog.Error("Chat invocation failed", "thread", threadID, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("agent error: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// getAgent returns the served agent, creating it on first call. The
// double check keeps concurrent first requests from composing the agent
// twice.
func (s *Server) getAgent(ctx context.Context) (*agent.Agent, error) {
	if a := s.agent.Load(); a != nil {
		return a, nil
	}

	s.agentMu.Lock()
	defer s.agentMu.Unlock()

	if a := s.agent.Load(); a != nil {
		return a, nil
	}

	a, err := runtime.CreateAgent(ctx, s.opts.Source, s.opts.SuppressToolInjection)
	if err != nil {
		return nil, err
	}
	s.agent.Store(a)
	return a, nil
}
