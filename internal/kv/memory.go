package kv

import (
	"context"
	"sort"
	"sync"
)

// MemoryMedium in-process medium, used for tests and ephemeral stores
type MemoryMedium struct {
	mu     sync.RWMutex
	values map[string]string
	size   int64
	quota  int64
	closed bool
}

// NewMemoryMedium creates an in-memory medium. A quota <= 0 means unlimited.
func NewMemoryMedium(quota int64) *MemoryMedium {
	return &MemoryMedium{
		values: make(map[string]string),
		quota:  quota,
	}
}

// Get returns the value stored under key
func (m *MemoryMedium) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", false, ErrClosed
	}
	v, ok := m.values[key]
	return v, ok, nil
}

// Set stores a value, failing with ErrQuotaExceeded on overflow
func (m *MemoryMedium) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	newSize := m.size + entrySize(key, value)
	if old, ok := m.values[key]; ok {
		newSize -= entrySize(key, old)
	}
	if m.quota > 0 && newSize > m.quota {
		return ErrQuotaExceeded
	}

	m.values[key] = value
	m.size = newSize
	return nil
}

// Remove deletes a key
func (m *MemoryMedium) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if old, ok := m.values[key]; ok {
		m.size -= entrySize(key, old)
		delete(m.values, key)
	}
	return nil
}

// Keys lists stored keys in lexical order
func (m *MemoryMedium) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Size returns the bytes in use
func (m *MemoryMedium) Size(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrClosed
	}
	return m.size, nil
}

// Close marks the medium closed
func (m *MemoryMedium) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
