package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turnloop/turnloop/types"
)

// PostgresStore implements Store using PostgreSQL with pgx. Turn state
// is stored as a single JSONB document per thread; Save is an upsert.
// With a non-zero TTL, rows past their expiry are invisible to Load
// and removed by PurgeExpired.
type PostgresStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewPostgresStore creates a PostgreSQL store without expiry.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// NewPostgresStoreTTL creates a PostgreSQL store whose checkpoints
// expire ttl after their last save.
func NewPostgresStoreTTL(pool *pgxpool.Pool, ttl time.Duration) *PostgresStore {
	return &PostgresStore{pool: pool, ttl: ttl}
}

// Schema returns the DDL for the checkpoint table. Callers run it once
// during provisioning or migrations.
func Schema() string {
	return `
CREATE TABLE IF NOT EXISTS turnloop_checkpoints (
    thread_id   TEXT PRIMARY KEY,
    state       JSONB NOT NULL,
    expires_at  TIMESTAMPTZ,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS turnloop_checkpoints_expires_at_idx
    ON turnloop_checkpoints (expires_at)
    WHERE expires_at IS NOT NULL;
`
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context, threadID string) (*types.TurnState, error) {
	query := `
		SELECT state
		FROM turnloop_checkpoints
		WHERE thread_id = $1
		  AND (expires_at IS NULL OR expires_at > NOW())
	`

	var raw []byte
	err := s.pool.QueryRow(ctx, query, threadID).Scan(&raw)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	var state types.TurnState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return &state, nil
}

// Save implements Store.
func (s *PostgresStore) Save(ctx context.Context, threadID string, state *types.TurnState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	var expiresAt *time.Time
	if s.ttl > 0 {
		t := time.Now().Add(s.ttl)
		expiresAt = &t
	}

	query := `
		INSERT INTO turnloop_checkpoints (thread_id, state, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (thread_id) DO UPDATE
		SET state = EXCLUDED.state,
		    expires_at = EXCLUDED.expires_at,
		    updated_at = NOW()
	`

	if _, err := s.pool.Exec(ctx, query, threadID, raw, expiresAt); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, threadID string) error {
	query := `DELETE FROM turnloop_checkpoints WHERE thread_id = $1`
	if _, err := s.pool.Exec(ctx, query, threadID); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// PurgeExpired removes expired checkpoints and returns how many rows
// were dropped.
func (s *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM turnloop_checkpoints WHERE expires_at IS NOT NULL AND expires_at <= NOW()`
	tag, err := s.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to purge checkpoints: %w", err)
	}
	return tag.RowsAffected(), nil
}
