package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// brokenStore selalu error, untuk jalur fail-open
type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("store down")
}

func (brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("store down")
}

func (brokenStore) DeletePrefix(context.Context, string) error {
	return errors.New("store down")
}

func TestKeyJoinsHierarchy(t *testing.T) {
	assert.Equal(t, "cost-summary:acct-1:2026-03:daily",
		Key("cost-summary", "acct-1", []string{"2026-03", "daily"}))
	assert.Equal(t, "posture-summary:tenant-a", Key("posture-summary", "tenant-a", nil))
}

func TestGetOrSetCachesWithinTTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := New(NewMemoryStoreWithClock(func() time.Time { return now }))
	ctx := context.Background()

	var calls int32
	producer := func(ctx context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte(`{"total":3}`), nil
	}

	v, err := c.GetOrSet(ctx, "posture-summary", "tenant-a", []string{"days-30"}, TTLShort, producer)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"total":3}`), v)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	// dalam TTL: hit, producer tidak jalan lagi
	v, err = c.GetOrSet(ctx, "posture-summary", "tenant-a", []string{"days-30"}, TTLShort, producer)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"total":3}`), v)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	// lewat TTL: entry basi, producer jalan lagi
	now = now.Add(TTLShort + time.Second)
	_, err = c.GetOrSet(ctx, "posture-summary", "tenant-a", []string{"days-30"}, TTLShort, producer)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGetOrSetDoesNotCacheProducerError(t *testing.T) {
	c := New(NewMemoryStore())
	ctx := context.Background()

	boom := errors.New("upstream 500")
	_, err := c.GetOrSet(ctx, "inventory", "acct-1", nil, TTLShort, func(ctx context.Context) ([]byte, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	// error tidak tersimpan: call berikutnya coba lagi dan bisa sukses
	v, err := c.GetOrSet(ctx, "inventory", "acct-1", nil, TTLShort, func(ctx context.Context) ([]byte, error) {
		return []byte("ok"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), v)
}

func TestGetOrSetDeduplicatesConcurrentMiss(t *testing.T) {
	c := New(NewMemoryStore())
	ctx := context.Background()

	var calls int32
	producer := func(ctx context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(30 * time.Millisecond)
		return []byte("v"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrSet(ctx, "inventory", "acct-1", nil, TTLShort, producer)
			assert.NoError(t, err)
			assert.Equal(t, []byte("v"), v)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestInvalidateCategoryRemovesOnlyMatchingPrefix(t *testing.T) {
	c := New(NewMemoryStore())
	ctx := context.Background()

	c.Set(ctx, "cost-summary", "acct-1", []string{"2026-02"}, []byte("a"), TTLMedium)
	c.Set(ctx, "cost-summary", "acct-1", []string{"2026-03"}, []byte("b"), TTLMedium)
	c.Set(ctx, "cost-summary", "acct-2", []string{"2026-03"}, []byte("c"), TTLMedium)
	c.Set(ctx, "inventory", "acct-1", []string{"vm"}, []byte("d"), TTLMedium)

	c.InvalidateCategory(ctx, "cost-summary", "acct-1")

	_, ok := c.Get(ctx, "cost-summary", "acct-1", []string{"2026-02"})
	assert.False(t, ok)
	_, ok = c.Get(ctx, "cost-summary", "acct-1", []string{"2026-03"})
	assert.False(t, ok)

	// account lain dan category lain tidak tersentuh
	v, ok := c.Get(ctx, "cost-summary", "acct-2", []string{"2026-03"})
	assert.True(t, ok)
	assert.Equal(t, []byte("c"), v)
	_, ok = c.Get(ctx, "inventory", "acct-1", []string{"vm"})
	assert.True(t, ok)
}

func TestCacheFailsOpenOnStoreOutage(t *testing.T) {
	c := New(brokenStore{})
	ctx := context.Background()

	_, ok := c.Get(ctx, "inventory", "acct-1", nil)
	assert.False(t, ok)

	// Set dan Invalidate tidak boleh panic ataupun propagate error
	c.Set(ctx, "inventory", "acct-1", nil, []byte("x"), TTLShort)
	c.InvalidateCategory(ctx, "inventory", "acct-1")

	// GetOrSet tetap menghasilkan nilai dari komputasi langsung
	v, err := c.GetOrSet(ctx, "inventory", "acct-1", nil, TTLShort, func(ctx context.Context) ([]byte, error) {
		return []byte("computed"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("computed"), v)
}

func TestMemoryStoreExpiryOnGet(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m := NewMemoryStoreWithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))

	_, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, ok, err = m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
