// Package backend provides storage implementations for the hub dispatcher.
//
// Two are included: Memory for tests and ephemeral hubs, SQLite for hubs
// whose data must survive a restart. Both keep keys in insertion order so
// KeyAt is deterministic.
package backend

import "sync"

// Memory is a mutex-guarded in-memory store. Keys enumerate in insertion
// order; overwriting an existing key keeps its position.
type Memory struct {
	mu    sync.RWMutex
	items map[string]any
	order []string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]any)}
}

// Get returns the value for key, or nil if absent.
func (m *Memory) Get(key string) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.items[key], nil
}

// Set stores value under key.
func (m *Memory) Set(key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.items[key]; !exists {
		m.order = append(m.order, key)
	}
	m.items[key] = value
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.items[key]; !exists {
		return nil
	}
	delete(m.items, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// Clear removes all entries.
func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]any)
	m.order = nil
	return nil
}

// Count returns the number of entries.
func (m *Memory) Count() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items), nil
}

// KeyAt returns the key at ordinal index in insertion order, reporting
// ok=false when index is out of range.
func (m *Memory) KeyAt(index int) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if index < 0 || index >= len(m.order) {
		return "", false, nil
	}
	return m.order[index], true, nil
}
