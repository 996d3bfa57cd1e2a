package cache

import (
	"context"
	"time"
)

// Store backing store untuk cache-aside layer.
type Store interface {
	// Get return value kalau ada dan belum expired pada saat dibaca.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// DeletePrefix hapus semua entry yang key-nya diawali prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}
