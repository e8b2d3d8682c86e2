package replay

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded in-process Store.
//
// This implementation is suitable for single-instance deployments only:
// its atomicity does not extend across processes. Multi-instance deployments
// must use RedisStore.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]memoryEntry
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Reserve(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.records[key]; ok && time.Now().Before(e.expiresAt) {
		return false, nil
	}
	s.records[key] = memoryEntry{value: cloneBytes(value), expiresAt: time.Now().Add(ttl)}
	s.cleanupExpiredLocked()
	return true, nil
}

func (s *MemoryStore) Read(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[key]
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(e.expiresAt) {
		delete(s.records, key)
		return nil, false, nil
	}
	return cloneBytes(e.value), true, nil
}

func (s *MemoryStore) Write(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[key] = memoryEntry{value: cloneBytes(value), expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, key)
	return nil
}

// cleanupExpiredLocked removes expired entries. Must be called with lock held.
func (s *MemoryStore) cleanupExpiredLocked() {
	now := time.Now()
	for key, e := range s.records {
		if now.After(e.expiresAt) {
			delete(s.records, key)
		}
	}
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

var _ Store = (*MemoryStore)(nil)
