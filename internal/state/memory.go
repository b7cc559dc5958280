package state

import (
	"context"
	"sync"

	"github.com/wemix/headwatch/internal/escalation"
)

// MemoryStore keeps state in process memory. Used by tests and dry runs.
type MemoryStore struct {
	mu    sync.Mutex
	state escalation.MonitorState
	saves int
}

// NewMemoryStore creates a store holding the default state
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: escalation.DefaultState()}
}

// NewMemoryStoreWith creates a store holding s
func NewMemoryStoreWith(s escalation.MonitorState) *MemoryStore {
	return &MemoryStore{state: s.Clone()}
}

// Load returns a copy of the held state
func (m *MemoryStore) Load(ctx context.Context) (escalation.MonitorState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone(), nil
}

// Save replaces the held state
func (m *MemoryStore) Save(ctx context.Context, s escalation.MonitorState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s.Clone()
	m.saves++
	return nil
}

// Update applies fn while holding the store mutex
func (m *MemoryStore) Update(ctx context.Context, fn UpdateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := fn(m.state.Clone())
	if err != nil {
		return err
	}
	m.state = next.Clone()
	m.saves++
	return nil
}

// Saves returns how many times state was persisted
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Close is a no-op
func (m *MemoryStore) Close() error {
	return nil
}
