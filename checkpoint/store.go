// Package checkpoint persists turn state per conversation thread.
//
// Two backends ship with the runtime: a volatile in-process store with
// optional TTL expiry, and a PostgreSQL store (pgx pool or
// database/sql) holding the state as JSONB. Both sit behind the same
// Store interface and are selected by configuration at construction.
package checkpoint

import (
	"context"
	"errors"

	"github.com/turnloop/turnloop/types"
)

// ErrNotFound is returned by Load when no checkpoint exists for the
// thread.
var ErrNotFound = errors.New("checkpoint: thread not found")

// Store is the durable/volatile persistence boundary for turn state.
// Implementations must honor context cancellation and deadlines. The
// orchestrator guarantees per-thread serialization, so stores do not
// need per-thread locking beyond their own internal consistency.
type Store interface {
	// Load returns the checkpoint for the thread, or ErrNotFound.
	Load(ctx context.Context, threadID string) (*types.TurnState, error)

	// Save persists the checkpoint for the thread, replacing any
	// previous snapshot.
	Save(ctx context.Context, threadID string, state *types.TurnState) error

	// Delete removes the checkpoint for the thread. Deleting a
	// missing thread is not an error.
	Delete(ctx context.Context, threadID string) error
}
