package mcpserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

const (
	registerInstanceQuery = `
INSERT INTO agent_instances (agent_id, endpoint_url, last_heartbeat)
SELECT a.id, $2, NOW()
FROM agents a
WHERE a.name = $1
RETURNING id`

	heartbeatQuery = `
UPDATE agent_instances
SET last_heartbeat = NOW()
WHERE id = $1`
)

// InstanceRegistry records this process as a live instance of its agent
// and keeps the row's heartbeat fresh. Peers treat instances with a
// heartbeat under twenty minutes old as healthy.
type InstanceRegistry struct {
	dsn        string
	agentName  string
	endpoint   string
	db         *sql.DB
	instanceID string
}

// NewInstanceRegistry creates a registry; the connection opens on first
// use.
func NewInstanceRegistry(dsn, agentName, endpoint string) *InstanceRegistry {
	return &InstanceRegistry{
		dsn:       dsn,
		agentName: agentName,
		endpoint:  endpoint,
	}
}

// newInstanceRegistryWithDB wires an existing connection, for tests.
func newInstanceRegistryWithDB(db *sql.DB, agentName, endpoint string) *InstanceRegistry {
	return &InstanceRegistry{
		db:        db,
		agentName: agentName,
		endpoint:  endpoint,
	}
}

func (r *InstanceRegistry) connect() (*sql.DB, error) {
	if r.db != nil {
		return r.db, nil
	}
	db, err := sql.Open("postgres", r.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	r.db = db
	return db, nil
}

// Register inserts the instance row and remembers its id for
// heartbeating. An agent name missing from the control plane is an
// error; the instance would be undiscoverable anyway.
func (r *InstanceRegistry) Register(ctx context.Context) error {
	db, err := r.connect()
	if err != nil {
		return err
	}

	err = db.QueryRowContext(ctx, registerInstanceQuery, r.agentName, r.endpoint).Scan(&r.instanceID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("agent %q is not registered in the control plane", r.agentName)
	}
	if err != nil {
		return fmt.Errorf("failed to register instance: %w", err)
	}

	slog.Info("Registered agent instance",
		"agent", r.agentName,
		"instance_id", r.instanceID,
		"endpoint", r.endpoint)
	return nil
}

// Heartbeat refreshes the instance row's last_heartbeat.
func (r *InstanceRegistry) Heartbeat(ctx context.Context) error {
	if r.instanceID == "" {
		return fmt.Errorf("instance not registered")
	}

	db, err := r.connect()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, heartbeatQuery, r.instanceID); err != nil {
		return fmt.Errorf("failed to send heartbeat: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (r *InstanceRegistry) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Run registers the instance, then heartbeats on the interval until the
// context is canceled. Every failure is logged and retried on the next
// tick; serving traffic never depends on registration succeeding.
func (r *InstanceRegistry) Run(ctx context.Context, interval time.Duration) {
	defer func() {
		if err := r.Close(); err != nil {
			slog.Warn("Failed to close instance registry", "error", err)
		}
	}()

	if err := r.Register(ctx); err != nil {
		slog.Error("Instance registration failed, will retry on heartbeat", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if r.instanceID == "" {
				if err := r.Register(ctx); err != nil {
					slog.Error("Instance registration failed", "error", err)
					continue
				}
			}
			if err := r.Heartbeat(ctx); err != nil {
				slog.Error("Heartbeat failed", "error", err)
			} else {
				slog.Debug("Heartbeat sent", "instance_id", r.instanceID)
			}
		}
	}
}
