package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/turnloop/turnloop/types"
)

// SQLStore implements Store on database/sql for applications that do
// not use a pgx pool (e.g. lib/pq, pgbouncer setups). Placeholders are
// PostgreSQL-style; the table layout matches Schema().
type SQLStore struct {
	db  *sql.DB
	ttl time.Duration
}

// NewSQLStore creates a database/sql store without expiry.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// NewSQLStoreTTL creates a database/sql store whose checkpoints expire
// ttl after their last save.
func NewSQLStoreTTL(db *sql.DB, ttl time.Duration) *SQLStore {
	return &SQLStore{db: db, ttl: ttl}
}

// Load implements Store.
func (s *SQLStore) Load(ctx context.Context, threadID string) (*types.TurnState, error) {
	query := `
		SELECT state
		FROM turnloop_checkpoints
		WHERE thread_id = $1
		  AND (expires_at IS NULL OR expires_at > NOW())
	`

	var raw []byte
	err := s.db.QueryRowContext(ctx, query, threadID).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
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
func (s *SQLStore) Save(ctx context.Context, threadID string, state *types.TurnState) error {
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

	if _, err := s.db.ExecContext(ctx, query, threadID, raw, expiresAt); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *SQLStore) Delete(ctx context.Context, threadID string) error {
	query := `DELETE FROM turnloop_checkpoints WHERE thread_id = $1`
	if _, err := s.db.ExecContext(ctx, query, threadID); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// PurgeExpired removes expired checkpoints and returns how many rows
// were dropped.
func (s *SQLStore) PurgeExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM turnloop_checkpoints WHERE expires_at IS NOT NULL AND expires_at <= NOW()`
	res, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to purge checkpoints: %w", err)
	}
	return res.RowsAffected()
}
