package providers

import (
	"context"
	"time"
)

// Limiter subset dari rate limiter yang dibutuhkan gateway
type Limiter interface {
	WaitForRateLimit(ctx context.Context, service, accountID string) error
	ConsumeToken(ctx context.Context, service, accountID string) error
}

// Cache subset dari cache-aside layer yang dibutuhkan gateway
type Cache interface {
	Get(ctx context.Context, category, accountID string, parts []string) ([]byte, bool)
	Set(ctx context.Context, category, accountID string, parts []string, value []byte, ttl time.Duration)
}

// Gateway guard untuk semua upstream provider call: cek cache dulu, lalu
// rate limiter, baru panggil API. Ini mekanisme scanner memenuhi kontrak
// "wajib konsultasi RateLimiter/Cache sebelum upstream call".
type Gateway struct {
	limiter Limiter
	cache   Cache
}

func NewGateway(limiter Limiter, cache Cache) *Gateway {
	return &Gateway{limiter: limiter, cache: cache}
}

// CallUpstream jalankan satu upstream call lewat cache-aside + token bucket.
// Token hanya dikonsumsi setelah call sukses; call gagal tidak membakar budget.
func (g *Gateway) CallUpstream(
	ctx context.Context,
	service, accountID string,
	category string, parts []string, ttl time.Duration,
	call func(ctx context.Context) ([]byte, error),
) ([]byte, error) {
	if v, ok := g.cache.Get(ctx, category, accountID, parts); ok {
		return v, nil
	}

	if err := g.limiter.WaitForRateLimit(ctx, service, accountID); err != nil {
		return nil, err
	}

	out, err := call(ctx)
	if err != nil {
		return nil, err
	}

	// budget kepakai hanya di jalur sukses
	if err := g.limiter.ConsumeToken(ctx, service, accountID); err != nil {
		return nil, err
	}

	g.cache.Set(ctx, category, accountID, parts, out, ttl)
	return out, nil
}
