package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore implementasi Store in-process dengan TTL.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]entry
	clock   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]entry), clock: time.Now}
}

// NewMemoryStoreWithClock untuk test dengan waktu deterministik
func NewMemoryStoreWithClock(clock func() time.Time) *MemoryStore {
	return &MemoryStore{entries: make(map[string]entry), clock: clock}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	// get pada waktu T tidak boleh return value yang expiresAt < T
	if !e.expiresAt.After(m.clock()) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	m.entries[key] = entry{value: value, expiresAt: m.clock().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	m.mu.Unlock()
	return nil
}

// Sweep buang entry expired, dipanggil periodik dari main.
func (m *MemoryStore) Sweep() {
	now := m.clock()
	m.mu.Lock()
	for key, e := range m.entries {
		if !e.expiresAt.After(now) {
			delete(m.entries, key)
		}
	}
	m.mu.Unlock()
}
