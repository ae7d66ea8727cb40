package config

import (
	"encoding/json"
	"fmt"
)

// Document is the intermediate representation produced by a Source.
//
// It is schema-checked on parse: provider specs with wrongly typed
// discriminator fields fail here rather than deep inside a resolver.
// The Tools field distinguishes "absent" (nil) from "present but empty"
// (non-nil, zero length); the filesystem source emits the former when no
// injection occurs, the database source always emits the latter.
type Document struct {
	Name         string            `json:"name,omitempty"`
	Description  string            `json:"description,omitempty"`
	Model        *ModelSpec        `json:"model,omitempty"`
	LLM          *ModelSpec        `json:"llm,omitempty"`
	Prompt       *string           `json:"prompt,omitempty"`
	Tools        []ToolSpec        `json:"tools,omitempty"`
	Middleware   []MiddlewareSpec  `json:"middleware,omitempty"`
	Middlewares  []MiddlewareSpec  `json:"middlewares,omitempty"`
	Checkpointer *CheckpointerSpec `json:"checkpointer,omitempty"`
}

// ModelSpec names the language model and its sampling temperature.
// The filesystem shape uses "name", the database shape uses "model_name";
// both are accepted.
type ModelSpec struct {
	Name        string  `json:"name,omitempty"`
	ModelName   string  `json:"model_name,omitempty"`
	Temperature float64 `json:"temperature"`
}

// ResolvedName returns the model name regardless of which source shape
// populated the spec.
func (m *ModelSpec) ResolvedName() string {
	if m.ModelName != "" {
		return m.ModelName
	}
	return m.Name
}

// ModelSpec returns the model sub-spec, preferring the filesystem "model"
// key over the database "llm" key when both are present.
func (d *Document) ModelSpec() *ModelSpec {
	if d.Model != nil {
		return d.Model
	}
	return d.LLM
}

// MiddlewareSpecs returns the middleware list regardless of source shape.
func (d *Document) MiddlewareSpecs() []MiddlewareSpec {
	if d.Middleware != nil {
		return d.Middleware
	}
	return d.Middlewares
}

// ServerConfig describes one MCP server inside an "mcp" tool spec.
// For process-spawn servers Command/Args/Env are set; for live HTTP
// endpoints URL is set instead.
type ServerConfig struct {
	Transport string            `json:"transport,omitempty"`
	Command   string            `json:"command,omitempty"`
	Args      []string          `json:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	URL       string            `json:"url,omitempty"`
}

// ToolSpec is the unit the tool registry dispatches on. Type selects the
// builder; Enabled defaults to true when absent. Servers is the typed
// payload of "mcp" specs; any other type-specific fields land in Config.
type ToolSpec struct {
	Type    string
	Enabled *bool
	Servers map[string]ServerConfig
	Config  map[string]any
}

// IsEnabled reports whether the spec should be resolved.
func (s *ToolSpec) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

func (s *ToolSpec) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if v, ok := raw["type"]; ok {
		if err := json.Unmarshal(v, &s.Type); err != nil {
			return fmt.Errorf("tool spec: invalid type field: %w", err)
		}
		delete(raw, "type")
	}
	if v, ok := raw["enabled"]; ok {
		var enabled bool
		if err := json.Unmarshal(v, &enabled); err != nil {
			return fmt.Errorf("tool spec: invalid enabled field: %w", err)
		}
		s.Enabled = &enabled
		delete(raw, "enabled")
	}
	if v, ok := raw["servers"]; ok {
		if err := json.Unmarshal(v, &s.Servers); err != nil {
			return fmt.Errorf("tool spec: invalid servers field: %w", err)
		}
		delete(raw, "servers")
	}

	if len(raw) > 0 {
		s.Config = make(map[string]any, len(raw))
		for k, v := range raw {
			var val any
			if err := json.Unmarshal(v, &val); err != nil {
				return fmt.Errorf("tool spec: invalid field %q: %w", k, err)
			}
			s.Config[k] = val
		}
	}

	return nil
}

func (s ToolSpec) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, 3+len(s.Config))
	m["type"] = s.Type
	if s.Enabled != nil {
		m["enabled"] = *s.Enabled
	}
	if s.Servers != nil {
		m["servers"] = s.Servers
	}
	for k, v := range s.Config {
		m[k] = v
	}
	return json.Marshal(m)
}

// MiddlewareSpec selects and configures one middleware. The filesystem
// shape carries type-specific fields inline; the database shape nests
// them under "config". Both collapse into the Config map.
type MiddlewareSpec struct {
	Type    string
	Enabled *bool
	Config  map[string]any
}

// IsEnabled reports whether the spec should be resolved.
func (s *MiddlewareSpec) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

func (s *MiddlewareSpec) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if v, ok := raw["type"]; ok {
		if err := json.Unmarshal(v, &s.Type); err != nil {
			return fmt.Errorf("middleware spec: invalid type field: %w", err)
		}
		delete(raw, "type")
	}
	if v, ok := raw["enabled"]; ok {
		var enabled bool
		if err := json.Unmarshal(v, &enabled); err != nil {
			return fmt.Errorf("middleware spec: invalid enabled field: %w", err)
		}
		s.Enabled = &enabled
		delete(raw, "enabled")
	}
	if v, ok := raw["config"]; ok {
		if err := json.Unmarshal(v, &s.Config); err != nil {
			return fmt.Errorf("middleware spec: invalid config field: %w", err)
		}
		delete(raw, "config")
	}

	// Inline type-specific fields (filesystem shape) merge into Config.
	if len(raw) > 0 {
		if s.Config == nil {
			s.Config = make(map[string]any, len(raw))
		}
		for k, v := range raw {
			var val any
			if err := json.Unmarshal(v, &val); err != nil {
				return fmt.Errorf("middleware spec: invalid field %q: %w", k, err)
			}
			s.Config[k] = val
		}
	}

	return nil
}

func (s MiddlewareSpec) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, 3)
	m["type"] = s.Type
	if s.Enabled != nil {
		m["enabled"] = *s.Enabled
	}
	if len(s.Config) > 0 {
		m["config"] = s.Config
	}
	return json.Marshal(m)
}

// CheckpointerSpec selects and configures the conversation-state store.
// Type-specific fields (path, connection_string) live in Config and are
// validated by the matching builder.
type CheckpointerSpec struct {
	Type   string
	Config map[string]any
}

func (s *CheckpointerSpec) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if v, ok := raw["type"]; ok {
		if err := json.Unmarshal(v, &s.Type); err != nil {
			return fmt.Errorf("checkpointer spec: invalid type field: %w", err)
		}
		delete(raw, "type")
	}

	if len(raw) > 0 {
		s.Config = make(map[string]any, len(raw))
		for k, v := range raw {
			var val any
			if err := json.Unmarshal(v, &val); err != nil {
				return fmt.Errorf("checkpointer spec: invalid field %q: %w", k, err)
			}
			s.Config[k] = val
		}
	}

	return nil
}

func (s CheckpointerSpec) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, 1+len(s.Config))
	m["type"] = s.Type
	for k, v := range s.Config {
		m[k] = v
	}
	return json.Marshal(m)
}
