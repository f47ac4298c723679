// Package memory provides an in-memory cache.Store.
package memory

import (
	"context"
	"sync"

	"github.com/warp/shift-scheduler/cache"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Store keeps entries in a map. A positive quota caps the total number of
// key plus value bytes; writes beyond it fail with cache.ErrQuotaExceeded.
type Store struct {
	mu      sync.RWMutex
	entries map[string][]byte
	used    int
	quota   int
}

// New creates an unbounded store.
func New() *Store {
	return NewWithQuota(0)
}

// NewWithQuota creates a store capped at quota bytes. Zero means unbounded.
func NewWithQuota(quota int) *Store {
	return &Store{
		entries: make(map[string][]byte),
		quota:   quota,
	}
}

func (m *Store) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.entries[key]
	if !ok {
		return nil, cache.ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *Store) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	used := m.used
	if old, ok := m.entries[key]; ok {
		used -= len(key) + len(old)
	}
	used += len(key) + len(value)
	if m.quota > 0 && used > m.quota {
		return cache.ErrQuotaExceeded
	}

	v := make([]byte, len(value))
	copy(v, value)
	m.entries[key] = v
	m.used = used
	return nil
}

func (m *Store) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.entries[key]
	if !ok {
		return cache.ErrNotFound
	}
	m.used -= len(key) + len(old)
	delete(m.entries, key)
	return nil
}

func (m *Store) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string][]byte)
	m.used = 0
	return nil
}

// Len returns the number of stored entries.
func (m *Store) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Used returns the bytes counted against the quota.
func (m *Store) Used() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.used
}
