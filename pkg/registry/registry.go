// Package registry provides the generic builder registry shared by the
// provider families (llm, tool, middleware, checkpoint).
//
// A registry maps a string type tag to a builder. Registration happens
// once at process startup; lookups are safe under concurrent reads.
package registry

import (
	"fmt"
	"sort"
	"sync"
)

// UnknownTypeError is returned when a spec names a type tag that has no
// registered builder in the relevant registry.
type UnknownTypeError struct {
	Kind string
	Type string
}

func (e *UnknownTypeError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("unknown %s type: (empty)", e.Kind)
	}
	return fmt.Sprintf("unknown %s type: %q", e.Kind, e.Type)
}

// Builders is a registry of builder functions keyed by type tag.
// Registering the same tag twice is an error: providers are wired
// explicitly at startup, so a duplicate tag is always a programming
// mistake rather than an intentional override.
type Builders[T any] struct {
	kind  string
	mu    sync.RWMutex
	byTag map[string]T
}

// NewBuilders creates an empty registry. kind names the provider family
// and appears in error messages ("llm", "tool", ...).
func NewBuilders[T any](kind string) *Builders[T] {
	return &Builders[T]{
		kind:  kind,
		byTag: make(map[string]T),
	}
}

// Register adds a builder under the given type tag.
func (b *Builders[T]) Register(tag string, builder T) error {
	if tag == "" {
		return fmt.Errorf("%s builder tag cannot be empty", b.kind)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.byTag[tag]; exists {
		return fmt.Errorf("%s builder %q already registered", b.kind, tag)
	}

	b.byTag[tag] = builder
	return nil
}

// Get retrieves the builder for a type tag.
func (b *Builders[T]) Get(tag string) (T, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	builder, exists := b.byTag[tag]
	if !exists {
		var zero T
		return zero, &UnknownTypeError{Kind: b.kind, Type: tag}
	}
	return builder, nil
}

// Types returns the sorted tags of all registered builders.
func (b *Builders[T]) Types() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	tags := make([]string, 0, len(b.byTag))
	for tag := range b.byTag {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Count returns the number of registered builders.
func (b *Builders[T]) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byTag)
}
