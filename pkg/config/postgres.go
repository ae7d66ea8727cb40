package config

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/lib/pq"
)

// agentDataQuery fetches the agent, its active version, and the enabled
// middlewares and tools for that version in one round trip. Middlewares
// and tools come back as JSON-aggregated arrays, pre-filtered to enabled
// rows and pre-ordered (execution_order, priority). Tool rows are joined
// through the tool_catalog view with per-version override fields taking
// precedence over catalog defaults when non-null.
const agentDataQuery = `
WITH agent_data AS (
    SELECT
        a.id AS agent_id,
        a.name,
        a.description,
        av.id AS version_id,
        av.version,
        av.model_name,
        av.model_temperature,
        av.prompt
    FROM agents a
    JOIN agent_versions av ON a.id = av.agent_id
    WHERE a.name = $1 AND av.is_active = TRUE
    LIMIT 1
),
middlewares_agg AS (
    SELECT
        ad.version_id,
        COALESCE(
            json_agg(
                json_build_object(
                    'type', avm.middleware_type,
                    'config', avm.config,
                    'enabled', avm.enabled,
                    'execution_order', avm.execution_order
                )
                ORDER BY avm.execution_order
            ) FILTER (WHERE avm.middleware_type IS NOT NULL),
            '[]'::json
        ) AS middlewares
    FROM agent_data ad
    LEFT JOIN agent_version_middlewares avm
        ON ad.version_id = avm.agent_version_id
        AND avm.enabled = TRUE
    GROUP BY ad.version_id
),
tools_agg AS (
    SELECT
        ad.version_id,
        COALESCE(
            json_agg(
                json_build_object(
                    'tool_kind', tc.tool_kind,
                    'tool_id', avt.tool_id,
                    'tool_name', tc.tool_name,
                    'enabled', avt.enabled,
                    'priority', avt.priority,
                    'transport', COALESCE(avt.override->>'transport', tc.transport),
                    'command', COALESCE(avt.override->>'command', tc.command),
                    'args', COALESCE(avt.override->'args', tc.args),
                    'env', COALESCE(avt.override->'env', tc.env)
                )
                ORDER BY avt.priority
            ) FILTER (WHERE avt.tool_id IS NOT NULL AND avt.enabled = TRUE AND tc.enabled = TRUE),
            '[]'::json
        ) AS tools
    FROM agent_data ad
    LEFT JOIN agent_version_tools avt ON ad.version_id = avt.agent_version_id
    LEFT JOIN tool_catalog tc ON avt.tool_id = tc.tool_id
    GROUP BY ad.version_id
)
SELECT
    ad.name,
    ad.description,
    ad.model_name,
    ad.model_temperature,
    ad.prompt,
    ma.middlewares,
    ta.tools
FROM agent_data ad
LEFT JOIN middlewares_agg ma ON ad.version_id = ma.version_id
LEFT JOIN tools_agg ta ON ad.version_id = ta.version_id`

// instanceEndpointQuery finds the most recent healthy instance of an
// agent. Health is derived from heartbeat freshness alone: an instance is
// healthy iff its last heartbeat is under 20 minutes old.
const instanceEndpointQuery = `
SELECT ai.endpoint_url
FROM agent_instances ai
JOIN agents a ON ai.agent_id = a.id
WHERE a.name = $1
  AND ai.last_heartbeat > NOW() - INTERVAL '20 minutes'
ORDER BY ai.last_heartbeat DESC
LIMIT 1`

// PostgresSource loads agent configuration from a PostgreSQL control
// plane: agents, agent_versions, agent_version_middlewares,
// agent_version_tools, the unifying tool_catalog view, and
// agent_instances for live endpoint discovery.
//
// The connection is opened lazily inside Load and closed on every exit
// path.
type PostgresSource struct {
	dsn       string
	agentName string
	db        *sql.DB
	execPath  string
}

// NewPostgresSource creates a source for the given DSN and agent name.
func NewPostgresSource(dsn, agentName string) *PostgresSource {
	return &PostgresSource{
		dsn:       dsn,
		agentName: agentName,
		execPath:  currentExecutable(),
	}
}

// NewPostgresSourceWithDB creates a source over an existing connection.
// The connection is still closed by Load; callers hand over ownership.
func NewPostgresSourceWithDB(db *sql.DB, dsn, agentName string) *PostgresSource {
	return &PostgresSource{
		dsn:       dsn,
		agentName: agentName,
		db:        db,
		execPath:  currentExecutable(),
	}
}

func currentExecutable() string {
	exe, err := os.Executable()
	if err != nil {
		return "loom"
	}
	return exe
}

// middlewareRow mirrors one element of the middlewares JSON aggregate.
type middlewareRow struct {
	Type           string         `json:"type"`
	Config         map[string]any `json:"config"`
	Enabled        bool           `json:"enabled"`
	ExecutionOrder int            `json:"execution_order"`
}

// toolRow mirrors one element of the tools JSON aggregate. The nullable
// fields carry the already-override-merged values from the query.
type toolRow struct {
	ToolKind  string            `json:"tool_kind"`
	ToolID    string            `json:"tool_id"`
	ToolName  string            `json:"tool_name"`
	Enabled   bool              `json:"enabled"`
	Priority  int               `json:"priority"`
	Transport *string           `json:"transport"`
	Command   *string           `json:"command"`
	Args      []string          `json:"args"`
	Env       map[string]string `json:"env"`
}

type agentData struct {
	Name        string
	Description sql.NullString
	ModelName   string
	Temperature float64
	Prompt      sql.NullString
	Middlewares []middlewareRow
	Tools       []toolRow
}

// Load assembles the complete configuration document.
//
// Unlike the filesystem source, suppressToolInjection forces tools to an
// empty (non-nil) sequence regardless of catalog content: database tools
// are never "explicit" the way a hand-written file is.
func (s *PostgresSource) Load(ctx context.Context, suppressToolInjection bool) (*Document, error) {
	db, err := s.connect()
	if err != nil {
		return nil, err
	}
	defer s.close()

	data, err := s.fetchAgentData(ctx, db)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Name:        data.Name,
		Description: data.Description.String,
		LLM: &ModelSpec{
			ModelName:   data.ModelName,
			Temperature: data.Temperature,
		},
		Middlewares: buildMiddlewareSpecs(data.Middlewares),
		Tools:       []ToolSpec{},
	}

	if !suppressToolInjection {
		doc.Tools = s.buildToolSpecs(ctx, db, data.Tools)
	}

	if data.Prompt.Valid && data.Prompt.String != "" {
		prompt := data.Prompt.String
		doc.Prompt = &prompt
	}

	return doc, nil
}

func (s *PostgresSource) connect() (*sql.DB, error) {
	if s.db != nil {
		return s.db, nil
	}
	db, err := sql.Open("postgres", s.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	s.db = db
	return db, nil
}

func (s *PostgresSource) close() {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			slog.Warn("Failed to close postgres connection", "error", err)
		}
		s.db = nil
	}
}

func (s *PostgresSource) fetchAgentData(ctx context.Context, db *sql.DB) (*agentData, error) {
	var (
		data            agentData
		middlewaresJSON []byte
		toolsJSON       []byte
	)

	err := db.QueryRowContext(ctx, agentDataQuery, s.agentName).Scan(
		&data.Name,
		&data.Description,
		&data.ModelName,
		&data.Temperature,
		&data.Prompt,
		&middlewaresJSON,
		&toolsJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: agent %q not found or has no active version", ErrNotFound, s.agentName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch agent data: %w", err)
	}

	if len(middlewaresJSON) > 0 {
		if err := json.Unmarshal(middlewaresJSON, &data.Middlewares); err != nil {
			return nil, fmt.Errorf("%w: middlewares aggregate: %v", ErrMalformed, err)
		}
	}
	if len(toolsJSON) > 0 {
		if err := json.Unmarshal(toolsJSON, &data.Tools); err != nil {
			return nil, fmt.Errorf("%w: tools aggregate: %v", ErrMalformed, err)
		}
	}

	return &data, nil
}

// buildMiddlewareSpecs is a direct pass-through: the query already
// filtered to enabled rows and ordered by execution_order. The config
// key is carried only when non-empty.
func buildMiddlewareSpecs(rows []middlewareRow) []MiddlewareSpec {
	specs := make([]MiddlewareSpec, 0, len(rows))
	for _, row := range rows {
		enabled := row.Enabled
		spec := MiddlewareSpec{
			Type:    row.Type,
			Enabled: &enabled,
		}
		if len(row.Config) > 0 {
			spec.Config = row.Config
		}
		specs = append(specs, spec)
	}
	return specs
}

// buildToolSpecs groups catalog rows by tool name into a single "mcp"
// spec. Rows of kind "agent" attempt live endpoint discovery first and
// fall back to a stdio spawn config.
func (s *PostgresSource) buildToolSpecs(ctx context.Context, db *sql.DB, rows []toolRow) []ToolSpec {
	if len(rows) == 0 {
		return []ToolSpec{}
	}

	servers := make(map[string]ServerConfig, len(rows))
	for _, row := range rows {
		if row.ToolKind == "agent" {
			servers[row.ToolName] = s.buildAgentServer(ctx, db, row)
		} else {
			servers[row.ToolName] = s.buildMCPServer(row)
		}
	}

	enabled := true
	return []ToolSpec{
		{
			Type:    "mcp",
			Enabled: &enabled,
			Servers: servers,
		},
	}
}

func (s *PostgresSource) buildMCPServer(row toolRow) ServerConfig {
	cfg := ServerConfig{
		Command: s.resolveCommand(stringValue(row.Command)),
	}
	if row.Transport != nil {
		cfg.Transport = *row.Transport
	}
	if len(row.Args) > 0 {
		cfg.Args = row.Args
	}
	if len(row.Env) > 0 {
		cfg.Env = row.Env
	}
	return cfg
}

func (s *PostgresSource) buildAgentServer(ctx context.Context, db *sql.DB, row toolRow) ServerConfig {
	endpoint := s.lookupInstanceEndpoint(ctx, db, row.ToolName)

	if endpoint != "" {
		cfg := ServerConfig{
			Transport: "http",
			URL:       endpoint,
		}
		if row.Transport != nil && *row.Transport != "" {
			cfg.Transport = *row.Transport
		}
		if len(row.Env) > 0 {
			cfg.Env = row.Env
		}
		return cfg
	}

	// No healthy instance: spawn the agent as a subprocess serving MCP
	// over stdio, configured from the same control plane.
	command := stringValue(row.Command)
	if command == "" {
		command = s.execPath
	}
	cfg := ServerConfig{
		Transport: "stdio",
		Command:   s.resolveCommand(command),
	}
	if len(row.Args) > 0 {
		cfg.Args = row.Args
	} else {
		cfg.Args = []string{
			"serve",
			"--source-type", "postgres",
			"--postgres-dsn", s.dsn,
			"--agent-name", row.ToolName,
		}
	}
	if len(row.Env) > 0 {
		cfg.Env = row.Env
	}
	return cfg
}

// lookupInstanceEndpoint returns the endpoint of the most recently
// heartbeaten healthy instance, or "" when none exists. Query failures
// are logged and treated as "no healthy instance"; they never abort the
// overall load.
func (s *PostgresSource) lookupInstanceEndpoint(ctx context.Context, db *sql.DB, agentName string) string {
	var endpoint string
	err := db.QueryRowContext(ctx, instanceEndpointQuery, agentName).Scan(&endpoint)
	if errors.Is(err, sql.ErrNoRows) {
		return ""
	}
	if err != nil {
		slog.Warn("Failed to query agent instance, falling back to stdio",
			"agent", agentName,
			"error", err)
		return ""
	}
	return endpoint
}

// resolveCommand maps the literal command "python" to the path of the
// executable currently running, so spawned subprocesses share this
// deployment's environment rather than a possibly-different system
// installation.
func (s *PostgresSource) resolveCommand(command string) string {
	if command == "python" {
		return s.execPath
	}
	return command
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
