package llm

import "github.com/agentloom/loom/pkg/registry"

// DefaultProvider is the provider type used when configuration names a
// model without naming a provider.
const DefaultProvider = "openai"

// Builder constructs a Model for a provider type.
type Builder func(modelName string, temperature float64) (Model, error)

var builders = registry.NewBuilders[Builder]("llm provider")

// Register adds a provider builder under the given type tag. Duplicate
// tags are an error.
func Register(tag string, builder Builder) error {
	return builders.Register(tag, builder)
}

// Resolve builds a model from the default provider. The model name and
// temperature come straight from agent configuration.
func Resolve(modelName string, temperature float64) (Model, error) {
	return ResolveType(DefaultProvider, modelName, temperature)
}

// ResolveType builds a model from a named provider type. Unknown types
// surface as *registry.UnknownTypeError.
func ResolveType(providerType, modelName string, temperature float64) (Model, error) {
	builder, err := builders.Get(providerType)
	if err != nil {
		return nil, err
	}
	return builder(modelName, temperature)
}

// RegisteredProviders lists the registered provider types, sorted.
func RegisteredProviders() []string {
	return builders.Types()
}
