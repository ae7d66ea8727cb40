// Package checkpoint persists conversation state between invocations.
// A Saver stores the message history of a thread; the registry builds
// savers from configuration.
package checkpoint

import (
	"context"

	"github.com/agentloom/loom/pkg/config"
	"github.com/agentloom/loom/pkg/llm"
	"github.com/agentloom/loom/pkg/registry"
)

// Saver loads and stores per-thread message history.
type Saver interface {
	Load(ctx context.Context, threadID string) ([]llm.Message, error)
	Save(ctx context.Context, threadID string, messages []llm.Message) error
	Close() error
}

// Builder constructs a Saver from its spec.
type Builder func(spec *config.CheckpointerSpec) (Saver, error)

var builders = registry.NewBuilders[Builder]("checkpointer")

// Register adds a checkpointer builder under the given type tag.
func Register(tag string, builder Builder) error {
	return builders.Register(tag, builder)
}

// Resolve builds the saver for a spec. A nil spec means the agent did
// not configure persistence and gets the in-memory saver.
func Resolve(spec *config.CheckpointerSpec) (Saver, error) {
	if spec == nil {
		spec = &config.CheckpointerSpec{Type: "memory"}
	}

	builder, err := builders.Get(spec.Type)
	if err != nil {
		return nil, err
	}
	return builder(spec)
}

// RegisteredTypes lists the registered checkpointer types, sorted.
func RegisteredTypes() []string {
	return builders.Types()
}
