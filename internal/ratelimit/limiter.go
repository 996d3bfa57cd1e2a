package ratelimit

import (
	"context"
	"log"
	"time"

	"github.com/bryanwahyu/cloudguard-sec/internal/domain/faults"
)

// Decision hasil checkRateLimit
type Decision struct {
	Allowed           bool    `json:"allowed"`
	RetryAfterSeconds float64 `json:"retry_after_seconds"`
}

// Limiter token bucket per (service, accountId): traffic satu account tidak
// bisa starve account/tenant lain yang share service yang sama.
type Limiter struct {
	store       Store
	rules       map[string]Rule
	defaultRule Rule
	waitTimeout time.Duration
	pollEvery   time.Duration
	clock       func() time.Time
}

type Option func(*Limiter)

// WithClock override sumber waktu, supaya gampang ditest
func WithClock(clock func() time.Time) Option {
	return func(l *Limiter) { l.clock = clock }
}

// WithWaitTimeout batas maksimum blocking di WaitForRateLimit
func WithWaitTimeout(d time.Duration) Option {
	return func(l *Limiter) { l.waitTimeout = d }
}

// WithPollInterval interval poll saat menunggu token
func WithPollInterval(d time.Duration) Option {
	return func(l *Limiter) { l.pollEvery = d }
}

// WithRule set rule khusus untuk satu service name
func WithRule(service string, rule Rule) Option {
	return func(l *Limiter) { l.rules[service] = rule }
}

func NewLimiter(store Store, defaultRule Rule, opts ...Option) *Limiter {
	l := &Limiter{
		store:       store,
		rules:       make(map[string]Rule),
		defaultRule: defaultRule,
		waitTimeout: 30 * time.Second,
		pollEvery:   100 * time.Millisecond,
		clock:       time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Limiter) rule(service string) Rule {
	if r, ok := l.rules[service]; ok {
		return r
	}
	return l.defaultRule
}

func key(service, accountID string) string { return service + ":" + accountID }

// CheckRateLimit baca state bucket sekarang (lazy refill dari lastRefillAt)
// tanpa memutasi sisa token. Store unreachable = fail closed (deny),
// kebalikan dari cache yang fail open.
func (l *Limiter) CheckRateLimit(ctx context.Context, service, accountID string) (Decision, error) {
	rule := l.rule(service)
	now := l.clock()

	state, ok, err := l.store.Peek(ctx, key(service, accountID))
	if err != nil {
		log.Printf("ratelimit store peek error, failing closed: service=%s account=%s err=%v", service, accountID, err)
		return Decision{Allowed: false, RetryAfterSeconds: rule.PerTokenInterval().Seconds()},
			&faults.RateLimitExceeded{Service: service, AccountID: accountID, RetryAfterSeconds: rule.PerTokenInterval().Seconds()}
	}
	if !ok {
		// bucket belum ada = penuh
		return Decision{Allowed: rule.Capacity > 0}, nil
	}

	tokens := state.Refilled(rule, now)
	if tokens >= 1 {
		return Decision{Allowed: true}, nil
	}

	// waktu sampai token berikutnya tersedia
	missing := 1 - tokens
	retry := missing * rule.PerTokenInterval().Seconds()
	return Decision{Allowed: false, RetryAfterSeconds: retry}, nil
}

// WaitForRateLimit blok sampai token tersedia atau bounded timeout lewat.
// Dipakai sebagai guard sebelum setiap upstream provider call.
func (l *Limiter) WaitForRateLimit(ctx context.Context, service, accountID string) error {
	deadline := l.clock().Add(l.waitTimeout)

	for {
		d, err := l.CheckRateLimit(ctx, service, accountID)
		if err != nil {
			return err
		}
		if d.Allowed {
			return nil
		}
		if l.clock().After(deadline) {
			return &faults.RateLimitExceeded{Service: service, AccountID: accountID, RetryAfterSeconds: d.RetryAfterSeconds}
		}

		wait := l.pollEvery
		if retry := time.Duration(d.RetryAfterSeconds * float64(time.Second)); retry > 0 && retry < wait {
			wait = retry
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// ConsumeToken decrement satu token secara atomic. Dipanggil hanya setelah
// upstream call sukses. Call gagal tidak membakar budget.
func (l *Limiter) ConsumeToken(ctx context.Context, service, accountID string) error {
	rule := l.rule(service)
	ok, err := l.store.Consume(ctx, key(service, accountID), rule, l.clock())
	if err != nil {
		log.Printf("ratelimit store consume error, failing closed: service=%s account=%s err=%v", service, accountID, err)
		return &faults.RateLimitExceeded{Service: service, AccountID: accountID, RetryAfterSeconds: rule.PerTokenInterval().Seconds()}
	}
	if !ok {
		d, _ := l.CheckRateLimit(ctx, service, accountID)
		return &faults.RateLimitExceeded{Service: service, AccountID: accountID, RetryAfterSeconds: d.RetryAfterSeconds}
	}
	return nil
}

// Allow shortcut check+consume untuk pemakaian gaya middleware HTTP.
func (l *Limiter) Allow(ctx context.Context, service, accountID string) bool {
	ok, err := l.store.Consume(ctx, key(service, accountID), l.rule(service), l.clock())
	if err != nil {
		log.Printf("ratelimit store error, failing closed: %v", err)
		return false
	}
	return ok
}
