package checkpoint

import (
	"context"
	"sync"
	"time"

	"github.com/turnloop/turnloop/types"
)

// MemoryStore is a volatile in-process Store. With a non-zero TTL,
// checkpoints expire after the configured duration since their last
// save; expired entries are dropped lazily on access and by the
// optional purge loop.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	state   *types.TurnState
	savedAt time.Time
}

// NewMemoryStore creates a store without expiry.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreTTL(0)
}

// NewMemoryStoreTTL creates a store whose checkpoints expire ttl after
// their last save. A zero ttl disables expiry.
func NewMemoryStoreTTL(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Load implements Store.
func (s *MemoryStore) Load(ctx context.Context, threadID string) (*types.TurnState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	entry, ok := s.entries[threadID]
	s.mu.RUnlock()

	if !ok || s.expired(entry) {
		if ok {
			s.mu.Lock()
			// Re-check under the write lock; a save may have raced.
			if entry, ok := s.entries[threadID]; ok && s.expired(entry) {
				delete(s.entries, threadID)
			}
			s.mu.Unlock()
		}
		return nil, ErrNotFound
	}

	// Hand out a clone so callers cannot mutate stored state.
	return entry.state.Clone(), nil
}

// Save implements Store.
func (s *MemoryStore) Save(ctx context.Context, threadID string, state *types.TurnState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[threadID] = memoryEntry{
		state:   state.Clone(),
		savedAt: s.now(),
	}
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, threadID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, threadID)
	return nil
}

// Len returns the number of live (non-expired) checkpoints.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, entry := range s.entries {
		if !s.expired(entry) {
			n++
		}
	}
	return n
}

// Purge removes all expired checkpoints and returns how many were
// dropped.
func (s *MemoryStore) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for id, entry := range s.entries {
		if s.expired(entry) {
			delete(s.entries, id)
			dropped++
		}
	}
	return dropped
}

// StartPurgeLoop purges expired checkpoints every interval until ctx
// is cancelled. It is a no-op for stores without a TTL.
func (s *MemoryStore) StartPurgeLoop(ctx context.Context, interval time.Duration) {
	if s.ttl <= 0 || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Purge()
			}
		}
	}()
}

func (s *MemoryStore) expired(entry memoryEntry) bool {
	return s.ttl > 0 && s.now().Sub(entry.savedAt) >= s.ttl
}
