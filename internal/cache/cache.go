package cache

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"
)

// TTL preset per volatilitas data: posture cepat basi, cost summary sejam,
// forecast tahan lama.
const (
	TTLShort  = 5 * time.Minute
	TTLMedium = time.Hour
	TTLLong   = 6 * time.Hour
)

// Cache layer cache-aside dengan key hierarkis (category, accountId, parts)
// dan invalidasi per prefix. Store failure = fail open: log lalu jatuh ke
// komputasi langsung, outage cache tidak boleh memblokir request.
type Cache struct {
	store Store

	mu       sync.Mutex
	inFlight map[string]*flight
}

type flight struct {
	done  chan struct{}
	value []byte
	err   error
}

func New(store Store) *Cache {
	return &Cache{store: store, inFlight: make(map[string]*flight)}
}

// Key gabung (category, accountId, parts...) jadi key deterministik
func Key(category, accountID string, parts []string) string {
	segs := append([]string{category, accountID}, parts...)
	return strings.Join(segs, ":")
}

func categoryPrefix(category, accountID string) string {
	return category + ":" + accountID + ":"
}

// Get return (value, true) saat hit. Miss dan store error dua-duanya jadi
// (nil, false), caller tinggal hitung langsung.
func (c *Cache) Get(ctx context.Context, category, accountID string, parts []string) ([]byte, bool) {
	v, ok, err := c.store.Get(ctx, Key(category, accountID, parts))
	if err != nil {
		log.Printf("cache get failed open: key=%s err=%v", Key(category, accountID, parts), err)
		return nil, false
	}
	return v, ok
}

// Set simpan value dengan TTL pilihan call site
func (c *Cache) Set(ctx context.Context, category, accountID string, parts []string, value []byte, ttl time.Duration) {
	if err := c.store.Set(ctx, Key(category, accountID, parts), value, ttl); err != nil {
		log.Printf("cache set failed open: key=%s err=%v", Key(category, accountID, parts), err)
	}
}

// GetOrSet cache-aside: miss memanggil producer (biasanya upstream call yang
// sudah digate rate limiter), simpan hasil, return. Concurrent miss untuk key
// yang sama dideduplikasi: hanya satu producer yang jalan, sisanya nunggu
// hasil yang sama (hardening terhadap cache stampede).
func (c *Cache) GetOrSet(
	ctx context.Context,
	category, accountID string, parts []string,
	ttl time.Duration,
	producer func(ctx context.Context) ([]byte, error),
) ([]byte, error) {
	key := Key(category, accountID, parts)

	if v, ok, err := c.store.Get(ctx, key); err == nil && ok {
		return v, nil
	} else if err != nil {
		log.Printf("cache get failed open: key=%s err=%v", key, err)
	}

	c.mu.Lock()
	if f, ok := c.inFlight[key]; ok {
		c.mu.Unlock()
		select {
		case <-f.done:
			return f.value, f.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f := &flight{done: make(chan struct{})}
	c.inFlight[key] = f
	c.mu.Unlock()

	f.value, f.err = producer(ctx)
	if f.err == nil {
		if err := c.store.Set(ctx, key, f.value, ttl); err != nil {
			log.Printf("cache set failed open: key=%s err=%v", key, err)
		}
	}

	c.mu.Lock()
	delete(c.inFlight, key)
	c.mu.Unlock()
	close(f.done)

	return f.value, f.err
}

// InvalidateCategory hapus semua entry di bawah prefix (category, accountId),
// apapun trailing key parts-nya.
func (c *Cache) InvalidateCategory(ctx context.Context, category, accountID string) {
	if err := c.store.DeletePrefix(ctx, categoryPrefix(category, accountID)); err != nil {
		log.Printf("cache invalidate failed open: prefix=%s err=%v", categoryPrefix(category, accountID), err)
	}
}
