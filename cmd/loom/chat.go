package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/agentloom/loom/pkg/agent"
	loomruntime "github.com/agentloom/loom/pkg/runtime"
)

const (
	colorReset = "\033[0m"
	colorCyan  = "\033[36m"
	colorGreen = "\033[32m"
	colorRed   = "\033[31m"
	colorGray  = "\033[90m"
)

// ChatCmd runs an agent in the terminal: interactively, or as a single
// query when one is given on the command line.
type ChatCmd struct {
	sourceFlags

	Query []string `arg:"" optional:"" help:"One-off query; omit for an interactive session."`
}

func (c *ChatCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	source, err := loomruntime.NewSource(c.sourceOptions())
	if err != nil {
		return err
	}

	a, err := loomruntime.CreateAgent(ctx, source, c.NoTools)
	if err != nil {
		return err
	}

	if len(c.Query) > 0 {
		return c.runOnce(ctx, a, strings.Join(c.Query, " "))
	}
	return c.runInteractive(ctx, a)
}

// runOnce streams a single response and exits non-zero on failure.
func (c *ChatCmd) runOnce(ctx context.Context, a *agent.Agent, query string) error {
	threadID := newThreadID()
	for event := range a.Stream(ctx, threadID, query) {
		if event.Err != nil {
			fmt.Println()
			return event.Err
		}
		fmt.Print(event.Text)
	}
	fmt.Println()
	return nil
}

func (c *ChatCmd) runInteractive(ctx context.Context, a *agent.Agent) error {
	threadID := newThreadID()

	fmt.Printf("%sChatting with %s%s\n", colorCyan, a.Name(), colorReset)
	fmt.Printf("%sType 'exit' or 'quit' to leave, 'new' to start a fresh thread.%s\n\n", colorGray, colorReset)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Printf("%syou>%s ", colorGreen, colorReset)
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		switch {
		case input == "":
			continue
		case input == "exit" || input == "quit":
			return nil
		case input == "new":
			threadID = newThreadID()
			fmt.Printf("%sStarted a new thread.%s\n", colorGray, colorReset)
			continue
		}

		fmt.Printf("%s%s>%s ", colorCyan, a.Name(), colorReset)
		for event := range a.Stream(ctx, threadID, input) {
			if event.Err != nil {
				fmt.Printf("\n%sError: %v%s\n", colorRed, event.Err, colorReset)
				break
			}
			fmt.Print(event.Text)
		}
		fmt.Print("\n\n")

		if ctx.Err() != nil {
			return nil
		}
	}
}

func newThreadID() string {
	return "session-" + uuid.NewString()
}
