package turnloop

import "sync"

// threadLocks serializes turns per thread. Locks are created on first
// use and kept for the life of the orchestrator; a conversation's lock
// is stable across its turns.
type threadLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newThreadLocks() *threadLocks {
	return &threadLocks{locks: make(map[string]*sync.Mutex)}
}

func (t *threadLocks) get(threadID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	lock, ok := t.locks[threadID]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[threadID] = lock
	}
	return lock
}

// acquire blocks until the thread's lock is held.
func (t *threadLocks) acquire(threadID string) *sync.Mutex {
	lock := t.get(threadID)
	lock.Lock()
	return lock
}

// tryAcquire takes the thread's lock only if it is free.
func (t *threadLocks) tryAcquire(threadID string) (*sync.Mutex, bool) {
	lock := t.get(threadID)
	if !lock.TryLock() {
		return nil, false
	}
	return lock, true
}
