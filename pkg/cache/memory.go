package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is an in-process Cache with per-entry expiry. It suits
// single-instance deployments and tests; use Redis when several agents
// share one wallet.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value   string
	expires time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

func (m *MemoryCache) Get(ctx context.Context, key string) (string, bool) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return "", false
	}
	if time.Now().After(entry.expires) {
		m.Delete(ctx, key)
		return "", false
	}
	return entry.value, true
}

func (m *MemoryCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	m.mu.Lock()
	m.entries[key] = memoryEntry{value: value, expires: time.Now().Add(ttl)}
	m.mu.Unlock()
}

func (m *MemoryCache) Delete(ctx context.Context, key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

func (m *MemoryCache) Close() error { return nil }
