package cache

import (
	"context"
	"sync"
	"time"
)

// Entry holds the latest generated values for one topology component
type Entry struct {
	Component string             `json:"component"`
	Metrics   map[string]float64 `json:"metrics"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// LatestValues is the cache sink refreshed by the realtime metrics job
// and read by the API and status reporting.
type LatestValues interface {
	Put(ctx context.Context, entry Entry) error
	Get(ctx context.Context, component string) (Entry, bool, error)
	Components(ctx context.Context) ([]string, error)
	Len(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

// MemoryCache is the in-process LatestValues implementation used when no
// Redis address is configured and in tests.
type MemoryCache struct {
	entries map[string]Entry
	mu      sync.RWMutex
}

// NewMemoryCache creates an empty in-memory cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]Entry)}
}

// Put stores the entry, replacing any previous one for the component
func (m *MemoryCache) Put(_ context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.Component] = entry
	return nil
}

// Get retrieves the latest entry for a component
func (m *MemoryCache) Get(_ context.Context, component string) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, exists := m.entries[component]
	return entry, exists, nil
}

// Components returns the names of all cached components
func (m *MemoryCache) Components(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	return names, nil
}

// Len returns the number of cached components
func (m *MemoryCache) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// Ping always succeeds for the in-memory cache
func (m *MemoryCache) Ping(_ context.Context) error {
	return nil
}
