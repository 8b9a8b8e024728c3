package repository

import (
	"context"
	"sync"
)

// MemoryIdempotencyStore caches responses keyed by idempotency key.
type MemoryIdempotencyStore struct {
	mu        sync.RWMutex
	responses map[string][]byte
}

// NewMemoryIdempotencyStore constructs the store.
func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{responses: make(map[string][]byte)}
}

// GetResponse retrieves a cached response.
func (m *MemoryIdempotencyStore) GetResponse(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.responses[key]
	return append([]byte(nil), value...), ok, nil
}

// PutResponse stores a response payload.
func (m *MemoryIdempotencyStore) PutResponse(_ context.Context, key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[key] = append([]byte(nil), payload...)
	return nil
}
