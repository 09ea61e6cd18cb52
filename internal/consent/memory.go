package consent

import (
	"context"
	"sync"
)

// MemoryStore is a Store for local runs and tests. Unlike the Gate it takes a
// lock: many sessions share one store.
type MemoryStore struct {
	mu    sync.Mutex
	acked map[string]bool
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{acked: make(map[string]bool)}
}

// Acknowledged implements Store.
func (s *MemoryStore) Acknowledged(_ context.Context, deviceID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acked[deviceID], nil
}

// SetAcknowledged implements Store.
func (s *MemoryStore) SetAcknowledged(_ context.Context, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acked[deviceID] = true
	return nil
}
