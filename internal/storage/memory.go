package storage

import (
	"context"
	"sync"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
)

// MemoryStore implements domain.KVStore in memory.
// Used by tests and by `serve --ephemeral`.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte

	// GetErr and SetErr, when set, are returned by the next calls (for tests).
	GetErr error
	SetErr error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

func (m *MemoryStore) Get(ctx context.Context, keys ...string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.GetErr != nil {
		return nil, m.GetErr
	}
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok := m.values[k]; ok {
			out[k] = append([]byte(nil), v...)
		}
	}
	return out, nil
}

func (m *MemoryStore) Set(ctx context.Context, values map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SetErr != nil {
		return m.SetErr
	}
	for k, v := range values {
		m.values[k] = append([]byte(nil), v...)
	}
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

// Ensure MemoryStore implements domain.KVStore.
var _ domain.KVStore = (*MemoryStore)(nil)
