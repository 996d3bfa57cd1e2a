package mysql

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// CacheStore implementasi cache.Store di MySQL, untuk deployment scale-out
// yang butuh cache shared antar instance.
type CacheStore struct {
	db *sql.DB
}

func NewCacheStore(db *sql.DB) *CacheStore {
	return &CacheStore{db: db}
}

func (c *CacheStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	const q = `SELECT value FROM cache_entries WHERE cache_key=? AND expires_at > ? LIMIT 1;`
	var value []byte
	err := c.db.QueryRowContext(ctx, q, key, time.Now()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (c *CacheStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	const q = `
INSERT INTO cache_entries (cache_key, value, expires_at)
VALUES (?,?,?)
ON DUPLICATE KEY UPDATE value=VALUES(value), expires_at=VALUES(expires_at);`
	_, err := c.db.ExecContext(ctx, q, key, value, time.Now().Add(ttl))
	return err
}

func (c *CacheStore) DeletePrefix(ctx context.Context, prefix string) error {
	const q = `DELETE FROM cache_entries WHERE cache_key LIKE ?;`
	_, err := c.db.ExecContext(ctx, q, escapeLikePattern(prefix)+"%")
	return err
}

// Sweep hapus entry expired, dipanggil periodik dari main
func (c *CacheStore) Sweep(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at <= ?;`, time.Now())
	return err
}

// escapeLikePattern escapes special characters in LIKE patterns
func escapeLikePattern(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}
