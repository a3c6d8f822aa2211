package checkpoint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/turnloop/turnloop/internal/testutil"
)

func TestPostgresStoreRoundTrip(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Close()

	ctx := context.Background()
	if _, err := db.Pool.Exec(ctx, Schema()); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}
	t.Cleanup(func() {
		_, _ = db.Pool.Exec(context.Background(), `TRUNCATE turnloop_checkpoints`)
	})

	store := NewPostgresStore(db.Pool)

	state := sampleState("pg-round-trip")
	if err := store.Save(ctx, state.ThreadID, state); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	got, err := store.Load(ctx, state.ThreadID)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got.ThreadID != state.ThreadID {
		t.Errorf("thread id = %q, want %q", got.ThreadID, state.ThreadID)
	}
	if len(got.Messages) != len(state.Messages) {
		t.Errorf("message count = %d, want %d", len(got.Messages), len(state.Messages))
	}
	if got.NextAction != state.NextAction {
		t.Errorf("next action = %q, want %q", got.NextAction, state.NextAction)
	}
	if got.VerificationPassed == nil || !*got.VerificationPassed {
		t.Error("verification outcome lost in round trip")
	}

	// Upsert replaces the previous snapshot.
	state.RefinementAttempts = 2
	if err := store.Save(ctx, state.ThreadID, state); err != nil {
		t.Fatalf("second Save returned error: %v", err)
	}
	got, err = store.Load(ctx, state.ThreadID)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got.RefinementAttempts != 2 {
		t.Errorf("refinement attempts = %d after upsert, want 2", got.RefinementAttempts)
	}
}

func TestPostgresStoreMissingThread(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Close()

	ctx := context.Background()
	if _, err := db.Pool.Exec(ctx, Schema()); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}

	store := NewPostgresStore(db.Pool)
	if _, err := store.Load(ctx, "never-saved"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("error %v does not unwrap to ErrNotFound", err)
	}
}

func TestPostgresStoreTTL(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Close()

	ctx := context.Background()
	if _, err := db.Pool.Exec(ctx, Schema()); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}
	t.Cleanup(func() {
		_, _ = db.Pool.Exec(context.Background(), `TRUNCATE turnloop_checkpoints`)
	})

	// A TTL in the past makes the row immediately invisible.
	store := NewPostgresStoreTTL(db.Pool, -time.Minute)
	state := sampleState("pg-ttl")
	if err := store.Save(ctx, state.ThreadID, state); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	if _, err := store.Load(ctx, state.ThreadID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired checkpoint visible: error %v, want ErrNotFound", err)
	}

	dropped, err := store.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired returned error: %v", err)
	}
	if dropped != 1 {
		t.Errorf("PurgeExpired dropped %d rows, want 1", dropped)
	}
}
