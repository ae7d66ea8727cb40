package checkpoint

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/agentloom/loom/pkg/config"
)

const (
	postgresSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	thread_id TEXT PRIMARY KEY,
	messages JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	postgresLoad = `SELECT messages FROM checkpoints WHERE thread_id = $1`
	postgresSave = `
INSERT INTO checkpoints (thread_id, messages) VALUES ($1, $2)
ON CONFLICT (thread_id) DO UPDATE SET
	messages = EXCLUDED.messages,
	updated_at = NOW()`
)

// NewPostgres is the builder for "postgres" checkpointer specs. The
// config must name the connection string.
func NewPostgres(spec *config.CheckpointerSpec) (Saver, error) {
	dsn, _ := spec.Config["connection_string"].(string)
	if dsn == "" {
		return nil, fmt.Errorf("postgres checkpointer requires a connection_string")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}

	return newSQLSaver(db, postgresSchema, postgresLoad, postgresSave)
}
