package cache

import (
	"context"
	"sync"
)

// Cache holds values by key for the lifetime of a run.
type Cache[V any] interface {
	Store(ctx context.Context, key string, value V)
	Fetch(ctx context.Context, key string) (V, bool)
	Len() int
}

// Memory is an in-process Cache guarded by a single mutex. Entries are never
// evicted and a second Store for the same key overwrites the first.
type Memory[V any] struct {
	mtx     sync.Mutex
	entries map[string]V
}

// NewMemory makes a new empty in-memory cache.
func NewMemory[V any]() *Memory[V] {
	return &Memory[V]{
		entries: map[string]V{},
	}
}

func (m *Memory[V]) Store(_ context.Context, key string, value V) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.entries[key] = value
}

func (m *Memory[V]) Fetch(_ context.Context, key string) (V, bool) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	v, ok := m.entries[key]
	return v, ok
}

func (m *Memory[V]) Len() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return len(m.entries)
}
