package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLayered(t *testing.T, clock *fakeClock, ttl time.Duration) (*LayeredCache, *RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rc := NewRedisCacheFromClient(client, "")
	lc := NewLayeredCache(rc, WithLayeredMemoryTTL(ttl), WithLayeredClock(clock.Now))
	t.Cleanup(func() {
		_ = lc.Close()
		_ = client.Close()
	})
	return lc, rc, mr
}

func TestLayeredCache_ServesFromMemoryAfterWrite(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(0, 0)}
	lc, _, mr := newTestLayered(t, clock, 10*time.Second)

	require.NoError(t, lc.Set(ctx, "k", map[string]int{"n": 1}, time.Minute))
	mr.Del("k")

	var got map[string]int
	require.NoError(t, lc.Get(ctx, "k", &got))
	assert.Equal(t, 1, got["n"])
}

func TestLayeredCache_MemoryEntryBoundedByTTL(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(0, 0)}
	lc, _, mr := newTestLayered(t, clock, 10*time.Second)

	// write expiration below the memory TTL wins
	require.NoError(t, lc.Set(ctx, "short", "v", 2*time.Second))
	mr.FastForward(3 * time.Second)
	clock.Advance(3 * time.Second)
	var s string
	assert.True(t, errors.Is(lc.Get(ctx, "short", &s), ErrCacheMiss))

	require.NoError(t, lc.Set(ctx, "long", "v", time.Minute))
	mr.Del("long")
	clock.Advance(11 * time.Second)
	assert.True(t, errors.Is(lc.Get(ctx, "long", &s), ErrCacheMiss))
}

func TestLayeredCache_BackfillsFromRemote(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(0, 0)}
	lc, rc, mr := newTestLayered(t, clock, 10*time.Second)

	require.NoError(t, rc.Set(ctx, "k", "plain", time.Minute))
	var s string
	require.NoError(t, lc.Get(ctx, "k", &s))
	assert.Equal(t, "plain", s)

	mr.Del("k")
	s = ""
	require.NoError(t, lc.Get(ctx, "k", &s))
	assert.Equal(t, "plain", s)
}

func TestLayeredCache_MGetMergesLayers(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(0, 0)}
	lc, rc, mr := newTestLayered(t, clock, 10*time.Second)

	require.NoError(t, lc.MSet(ctx, map[string]interface{}{"a": "1"}, time.Minute))
	mr.Del("a")
	require.NoError(t, rc.Set(ctx, "b", "2", time.Minute))

	got, err := lc.MGet(ctx, "a", "b", "c")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, got)
}

func TestLayeredCache_DeleteClearsBothLayers(t *testing.T) {
	ctx := context.Background()
	lc, _, mr := newTestLayered(t, &fakeClock{now: time.Unix(0, 0)}, 10*time.Second)

	require.NoError(t, lc.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, lc.Delete(ctx, "k"))
	assert.False(t, mr.Exists("k"))
	var s string
	assert.True(t, errors.Is(lc.Get(ctx, "k", &s), ErrCacheMiss))
}
