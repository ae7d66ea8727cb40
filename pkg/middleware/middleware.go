// Package middleware defines conversation middlewares: components that
// rewrite message history before the model sees it, and the registry
// that builds them from configuration.
package middleware

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agentloom/loom/pkg/config"
	"github.com/agentloom/loom/pkg/llm"
	"github.com/agentloom/loom/pkg/registry"
)

// Middleware transforms the conversation before model invocation.
//
// Process may emit incremental text of its own (a summary being
// generated, for example); the execution graph tags that output with the
// middleware's Name so downstream consumers can filter it.
type Middleware interface {
	Name() string
	Process(ctx context.Context, messages []llm.Message, emit func(text string)) ([]llm.Message, error)
}

// Builder constructs a middleware from its spec.
type Builder func(spec config.MiddlewareSpec) (Middleware, error)

var builders = registry.NewBuilders[Builder]("middleware")

// Register adds a middleware builder under the given type tag.
func Register(tag string, builder Builder) error {
	return builders.Register(tag, builder)
}

// Resolve builds the middleware for one spec. Disabled specs resolve to
// nil without error.
func Resolve(spec config.MiddlewareSpec) (Middleware, error) {
	if !spec.IsEnabled() {
		slog.Info("Skipping disabled middleware", "type", spec.Type)
		return nil, nil
	}

	builder, err := builders.Get(spec.Type)
	if err != nil {
		return nil, err
	}

	mw, err := builder(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to build %q middleware: %w", spec.Type, err)
	}
	return mw, nil
}

// ResolveAll builds every enabled middleware, preserving spec order.
func ResolveAll(specs []config.MiddlewareSpec) ([]Middleware, error) {
	var mws []Middleware
	for _, spec := range specs {
		mw, err := Resolve(spec)
		if err != nil {
			return nil, err
		}
		if mw != nil {
			mws = append(mws, mw)
		}
	}
	return mws, nil
}

// RegisteredTypes lists the registered middleware types, sorted.
func RegisteredTypes() []string {
	return builders.Types()
}
