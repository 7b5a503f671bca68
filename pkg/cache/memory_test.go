package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestMemory(clock *fakeClock, size int) *MemoryCache {
	return NewMemoryCache(WithMemoryMaxSize(size), WithMemoryCleanup(0), WithMemoryClock(clock.Now))
}

func TestMemoryCache_StructRoundTrip(t *testing.T) {
	ctx := context.Background()
	mc := newTestMemory(&fakeClock{now: time.Unix(0, 0)}, 10)

	type rec struct {
		Ticker string
		Score  float64
	}
	require.NoError(t, mc.Set(ctx, "k", rec{"AAPL", 0.8}, time.Minute))

	var got rec
	require.NoError(t, mc.Get(ctx, "k", &got))
	assert.Equal(t, rec{"AAPL", 0.8}, got)

	var s string
	require.NoError(t, mc.Set(ctx, "sector:AAPL", "Technology", 0))
	require.NoError(t, mc.Get(ctx, "sector:AAPL", &s))
	assert.Equal(t, "Technology", s)
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1000, 0)}
	mc := newTestMemory(clock, 10)

	require.NoError(t, mc.Set(ctx, "k", "v", time.Minute))
	clock.Advance(59 * time.Second)
	ok, _ := mc.Exists(ctx, "k")
	assert.True(t, ok)

	clock.Advance(2 * time.Second)
	var v string
	assert.ErrorIs(t, mc.Get(ctx, "k", &v), ErrCacheMiss)
	assert.Equal(t, 0, mc.Len())
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(0, 0)}
	mc := newTestMemory(clock, 2)

	require.NoError(t, mc.Set(ctx, "a", "1", 0))
	clock.Advance(time.Second)
	require.NoError(t, mc.Set(ctx, "b", "2", 0))
	clock.Advance(time.Second)

	var v string
	require.NoError(t, mc.Get(ctx, "a", &v)) // touch a
	clock.Advance(time.Second)
	require.NoError(t, mc.Set(ctx, "c", "3", 0))

	assert.ErrorIs(t, mc.Get(ctx, "b", &v), ErrCacheMiss)
	assert.NoError(t, mc.Get(ctx, "a", &v))
	assert.NoError(t, mc.Get(ctx, "c", &v))
}

func TestMemoryCache_MSetAndMGetTyped(t *testing.T) {
	ctx := context.Background()
	mc := newTestMemory(&fakeClock{now: time.Unix(0, 0)}, 10)

	require.NoError(t, mc.MSet(ctx, map[string]interface{}{
		"x": map[string]int{"n": 1},
		"y": map[string]int{"n": 2},
	}, time.Minute))

	got, err := MGetTyped[map[string]int](ctx, mc, "x", "y", "missing")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 2, got["y"]["n"])
}

func TestGenerateKey(t *testing.T) {
	assert.Equal(t, "sector:AAPL", GenerateKey("sector", "AAPL"))
	assert.Equal(t, "sentiment:AAPL:5min", GenerateKey("sentiment", "AAPL", "5min"))
	assert.Equal(t, "plain", GenerateKey("plain"))
}
