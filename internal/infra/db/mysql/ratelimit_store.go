package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/bryanwahyu/cloudguard-sec/internal/ratelimit"
)

// RateLimitStore implementasi ratelimit.Store di MySQL. Refill + decrement
// dilakukan dalam satu statement UPDATE supaya atomic di level database,
// bukan lock proses, jadi token count tetap benar saat orchestrator
// jalan lebih dari satu instance.
type RateLimitStore struct {
	db *sql.DB
}

func NewRateLimitStore(db *sql.DB) *RateLimitStore {
	return &RateLimitStore{db: db}
}

func (r *RateLimitStore) Peek(ctx context.Context, key string) (ratelimit.State, bool, error) {
	const q = `SELECT tokens, last_refill_at FROM rate_limit_buckets WHERE bucket_key=? LIMIT 1;`
	var s ratelimit.State
	err := r.db.QueryRowContext(ctx, q, key).Scan(&s.Tokens, &s.LastRefillAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ratelimit.State{}, false, nil
	}
	if err != nil {
		return ratelimit.State{}, false, err
	}
	return s, true, nil
}

func (r *RateLimitStore) Consume(ctx context.Context, key string, rule ratelimit.Rule, now time.Time) (bool, error) {
	// pastikan row ada; bucket baru mulai penuh
	const ins = `
INSERT IGNORE INTO rate_limit_buckets (bucket_key, tokens, last_refill_at)
VALUES (?, ?, ?);`
	if _, err := r.db.ExecContext(ctx, ins, key, float64(rule.Capacity), now); err != nil {
		return false, err
	}

	// refill lazy + decrement dalam satu statement: compare-and-swap di DB.
	// refill = elapsed_seconds / interval_seconds * capacity
	const upd = `
UPDATE rate_limit_buckets
SET tokens = LEAST(?, tokens + TIMESTAMPDIFF(MICROSECOND, last_refill_at, ?) / 1000000.0 / ? * ?) - 1,
    last_refill_at = ?
WHERE bucket_key = ?
  AND LEAST(?, tokens + TIMESTAMPDIFF(MICROSECOND, last_refill_at, ?) / 1000000.0 / ? * ?) >= 1;`
	capacity := float64(rule.Capacity)
	interval := rule.RefillInterval.Seconds()
	res, err := r.db.ExecContext(ctx, upd,
		capacity, now, interval, capacity, now, key,
		capacity, now, interval, capacity,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
