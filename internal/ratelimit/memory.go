package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implementasi Store in-process. Cocok untuk test dan deployment
// single instance; untuk scale-out pakai store SQL di infra/db/mysql.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]State)}
}

func (m *MemoryStore) Peek(_ context.Context, key string) (State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.buckets[key]
	return s, ok, nil
}

func (m *MemoryStore) Consume(_ context.Context, key string, rule Rule, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.buckets[key]
	if !ok {
		s = State{Tokens: float64(rule.Capacity), LastRefillAt: now}
	}

	tokens := s.Refilled(rule, now)
	if tokens < 1 {
		m.buckets[key] = State{Tokens: tokens, LastRefillAt: now}
		return false, nil
	}
	m.buckets[key] = State{Tokens: tokens - 1, LastRefillAt: now}
	return true, nil
}

// Sweep buang bucket yang sudah lama idle, dipanggil periodik dari main.
func (m *MemoryStore) Sweep(olderThan time.Duration) {
	cutoff := time.Now().Add(-olderThan)
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, s := range m.buckets {
		if s.LastRefillAt.Before(cutoff) {
			delete(m.buckets, key)
		}
	}
}
