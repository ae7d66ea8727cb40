package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/agentloom/loom/pkg/llm"
)

// sqlSaver implements Saver over database/sql. Thread histories are
// stored whole as JSON, one row per thread; dialect differences live in
// the query strings supplied by the concrete constructors.
type sqlSaver struct {
	db        *sql.DB
	loadQuery string
	saveQuery string
}

func newSQLSaver(db *sql.DB, schema, loadQuery, saveQuery string) (*sqlSaver, error) {
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize checkpoint schema: %w", err)
	}
	return &sqlSaver{db: db, loadQuery: loadQuery, saveQuery: saveQuery}, nil
}

func (s *sqlSaver) Load(ctx context.Context, threadID string) ([]llm.Message, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, s.loadQuery, threadID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint for thread %q: %w", threadID, err)
	}

	var messages []llm.Message
	if err := json.Unmarshal(payload, &messages); err != nil {
		return nil, fmt.Errorf("corrupt checkpoint for thread %q: %w", threadID, err)
	}
	return messages, nil
}

func (s *sqlSaver) Save(ctx context.Context, threadID string, messages []llm.Message) error {
	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, s.saveQuery, threadID, payload); err != nil {
		return fmt.Errorf("failed to save checkpoint for thread %q: %w", threadID, err)
	}
	return nil
}

func (s *sqlSaver) Close() error {
	return s.db.Close()
}
