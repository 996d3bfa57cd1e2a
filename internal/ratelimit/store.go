package ratelimit

import (
	"context"
	"time"
)

// Rule konfigurasi bucket per external service. Capacity token penuh,
// RefillInterval waktu untuk mengisi ulang satu bucket penuh.
type Rule struct {
	Capacity       int
	RefillInterval time.Duration
}

// PerTokenInterval waktu refill untuk satu token
func (r Rule) PerTokenInterval() time.Duration {
	if r.Capacity <= 0 {
		return r.RefillInterval
	}
	return r.RefillInterval / time.Duration(r.Capacity)
}

// State snapshot satu bucket
type State struct {
	Tokens       float64
	LastRefillAt time.Time
}

// Refilled hitung token setelah lazy refill pada waktu now.
// tokens = min(capacity, tokens + elapsed/refillInterval * capacity)
func (s State) Refilled(rule Rule, now time.Time) float64 {
	elapsed := now.Sub(s.LastRefillAt)
	if elapsed <= 0 {
		return s.Tokens
	}
	refill := elapsed.Seconds() / rule.RefillInterval.Seconds() * float64(rule.Capacity)
	tokens := s.Tokens + refill
	if tokens > float64(rule.Capacity) {
		tokens = float64(rule.Capacity)
	}
	return tokens
}

// Store backing store bucket. Check-refill-decrement harus atomic di level
// store (bukan lock proses) supaya benar saat orchestrator discale-out.
type Store interface {
	// Peek baca state tanpa mutasi. ok=false kalau bucket belum pernah ada.
	Peek(ctx context.Context, key string) (State, bool, error)
	// Consume refill lalu decrement satu token secara atomic.
	// Return false kalau token habis.
	Consume(ctx context.Context, key string, rule Rule, now time.Time) (bool, error)
}
