package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/agentloom/loom/pkg/mcpserver"
	loomruntime "github.com/agentloom/loom/pkg/runtime"
)

// ServeCmd exposes an agent as an MCP tool server. With a postgres
// source the instance also registers itself and heartbeats so peer
// agents can discover it.
type ServeCmd struct {
	sourceFlags

	Hostname string `help:"Hostname advertised to peers (defaults to AGENT_HOSTNAME, then os.Hostname)."`
	Port     int    `help:"Port to listen on (defaults to MCP_INTERNAL_PORT, then 8000)."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

	source, err := loomruntime.NewSource(c.sourceOptions())
	if err != nil {
		return err
	}

	dsn := ""
	if c.SourceType == "postgres" {
		dsn = c.PostgresDSN
	}

	server, err := mcpserver.New(mcpserver.Options{
		Source:                source,
		AgentName:             c.AgentName,
		Hostname:              c.Hostname,
		Port:                  c.Port,
		PostgresDSN:           dsn,
		SuppressToolInjection: c.NoTools,
	})
	if err != nil {
		return err
	}

	return server.Run(ctx)
}
