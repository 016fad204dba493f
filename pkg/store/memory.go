package store

import "sync"

// MemoryStore is an in-memory SetStore.
// Useful for testing and development. Data is lost when the process exits.
type MemoryStore struct {
	mu   sync.RWMutex
	sets map[string][]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sets: make(map[string][]string)}
}

// GetSet implements SetStore.
func (m *MemoryStore) GetSet(key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members := m.sets[key]
	out := make([]string, len(members))
	copy(out, members)
	return out, nil
}

// PutSet implements SetStore.
func (m *MemoryStore) PutSet(key string, members []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sets[key] = normalize(members)
	return nil
}

// Clear removes all stored data.
func (m *MemoryStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sets = make(map[string][]string)
}

var _ SetStore = (*MemoryStore)(nil)
