package settings

import (
	"context"
	"sync"
)

// MemoryStore keeps settings for the lifetime of the process.
type MemoryStore struct {
	mu sync.Mutex
	s  Settings
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{s: Defaults()}
}

func (m *MemoryStore) Load(_ context.Context) (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s, nil
}

func (m *MemoryStore) Save(_ context.Context, s Settings) error {
	m.mu.Lock()
	m.s = s
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Update(_ context.Context, fn func(*Settings)) (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.s)
	return m.s, nil
}
