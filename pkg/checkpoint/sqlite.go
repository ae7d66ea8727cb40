package checkpoint

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/agentloom/loom/pkg/config"
)

const (
	sqliteSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	thread_id TEXT PRIMARY KEY,
	messages TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`
	sqliteLoad = `SELECT messages FROM checkpoints WHERE thread_id = ?`
	sqliteSave = `
INSERT INTO checkpoints (thread_id, messages) VALUES (?, ?)
ON CONFLICT(thread_id) DO UPDATE SET
	messages = excluded.messages,
	updated_at = CURRENT_TIMESTAMP`
)

// NewSQLite is the builder for "sqlite" checkpointer specs. The config
// must name the database path.
func NewSQLite(spec *config.CheckpointerSpec) (Saver, error) {
	path, _ := spec.Config["path"].(string)
	if path == "" {
		return nil, fmt.Errorf("sqlite checkpointer requires a path")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	return newSQLSaver(db, sqliteSchema, sqliteLoad, sqliteSave)
}
