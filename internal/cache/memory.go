package cache

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryCache is a process-local Backend with TTL expiry and a size bound
type MemoryCache struct {
	mu      sync.RWMutex
	data    map[string]memoryEntry
	maxSize int

	stopOnce sync.Once
	stopCh   chan struct{}
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// NewMemoryCache starts a cache that sweeps expired entries every
// cleanupInterval and evicts the soonest-expiring ones above maxSize
func NewMemoryCache(maxSize int, cleanupInterval time.Duration) *MemoryCache {
	mc := &MemoryCache{
		data:    make(map[string]memoryEntry),
		maxSize: maxSize,
		stopCh:  make(chan struct{}),
	}
	go mc.cleanupLoop(cleanupInterval)
	return mc
}

func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	entry, ok := m.data[key]
	m.mu.RUnlock()
	if !ok || entry.expired(time.Now()) {
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	m.data[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) GetMultiple(ctx context.Context, keys []string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	now := time.Now()

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, key := range keys {
		if entry, ok := m.data[key]; ok && !entry.expired(now) {
			result[key] = entry.value
		}
	}
	return result, nil
}

func (m *MemoryCache) SetMultiple(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	expiresAt := time.Now().Add(ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	for key, value := range items {
		m.data[key] = memoryEntry{value: value, expiresAt: expiresAt}
	}
	return nil
}

// Len reports the number of stored entries, expired or not
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (m *MemoryCache) Close() error {
	m.stopOnce.Do(func() { close(m.stopCh) })
	return nil
}

func (m *MemoryCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

func (m *MemoryCache) cleanup() {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	type live struct {
		key       string
		expiresAt time.Time
	}
	var entries []live
	for k, entry := range m.data {
		if entry.expired(now) {
			delete(m.data, k)
			continue
		}
		entries = append(entries, live{k, entry.expiresAt})
	}

	if m.maxSize <= 0 || len(entries) <= m.maxSize {
		return
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].expiresAt.Before(entries[j].expiresAt)
	})
	for _, e := range entries[:len(entries)-m.maxSize] {
		delete(m.data, e.key)
	}
}
