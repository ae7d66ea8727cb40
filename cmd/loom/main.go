// Command loom runs declarative conversational agents.
//
// Usage:
//
//	loom chat --source-type filesystem --config-path ./config
//	loom chat --source-type postgres --postgres-dsn $DSN --agent-name assistant "one-off question"
//	loom serve --source-type postgres --postgres-dsn $DSN --agent-name assistant
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/agentloom/loom/pkg/logger"
	loomruntime "github.com/agentloom/loom/pkg/runtime"
)

// CLI defines the command-line interface.
type CLI struct {
	Version VersionCmd `cmd:"" help:"Show version information."`
	Chat    ChatCmd    `cmd:"" help:"Chat with an agent in the terminal."`
	Serve   ServeCmd   `cmd:"" help:"Serve an agent as an MCP tool server."`

	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
}

// sourceFlags are shared by every command that loads an agent.
type sourceFlags struct {
	SourceType  string `name:"source-type" help:"Configuration source (filesystem or postgres)." env:"SOURCE_TYPE" default:"filesystem"`
	ConfigPath  string `name:"config-path" help:"Directory holding agent.json (filesystem source)." type:"path" default:"."`
	PostgresDSN string `name:"postgres-dsn" help:"PostgreSQL DSN (postgres source, defaults to POSTGRES_DSN or DATABASE_URL)." env:"POSTGRES_DSN,DATABASE_URL"`
	AgentName   string `name:"agent-name" help:"Agent to load (postgres source)." env:"AGENT_NAME"`
	NoTools     bool   `name:"no-tools" help:"Suppress MCP tool injection."`
}

func (f *sourceFlags) sourceOptions() loomruntime.SourceOptions {
	return loomruntime.SourceOptions{
		SourceType:  f.SourceType,
		ConfigPath:  f.ConfigPath,
		PostgresDSN: f.PostgresDSN,
		AgentName:   f.AgentName,
	}
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("loom version %s\n", version)
	return nil
}

func main() {
	_ = godotenv.Load()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("loom"),
		kong.Description("Declarative conversational agents over MCP."),
		kong.UsageOnError(),
	)

	output := os.Stderr
	if cli.LogFile != "" {
		file, cleanup, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()
		output = file
	}
	logger.Init(logger.ParseLevel(cli.LogLevel), output, cli.LogFormat)

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
