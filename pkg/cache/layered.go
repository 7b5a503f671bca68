package cache

import (
	"context"
	"time"
)

var _ Service = (*LayeredCache)(nil)

// LayeredCache implements two-level cache (L1: Memory, L2: Redis).
// An L1 entry lives for at most the L1 TTL and never longer than the
// expiration it was written with, so it cannot outlive its Redis copy by more
// than the L1 TTL.
type LayeredCache struct {
	memCache *MemoryCache
	remote   Service
	ttl      time.Duration
}

// NewLayeredCache creates a layered cache with memory in front of remote.
func NewLayeredCache(remote Service, opts ...LayeredOption) *LayeredCache {
	cfg := &LayeredConfig{
		MemoryMaxSize: 1000,
		MemoryTTL:     5 * time.Second,
		Now:           time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &LayeredCache{
		memCache: NewMemoryCache(WithMemoryMaxSize(cfg.MemoryMaxSize), WithMemoryClock(cfg.Now)),
		remote:   remote,
		ttl:      cfg.MemoryTTL,
	}
}

// MemoryTTL is the longest a value is served from memory.
func (lc *LayeredCache) MemoryTTL() time.Duration { return lc.ttl }

func (lc *LayeredCache) memTTL(expiration time.Duration) time.Duration {
	if expiration > 0 && expiration < lc.ttl {
		return expiration
	}
	return lc.ttl
}

// Set writes through: remote first, then memory.
func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := lc.remote.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	_ = lc.memCache.Set(ctx, key, value, lc.memTTL(expiration))
	return nil
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := lc.memCache.Get(ctx, key, dest); err == nil {
		return nil
	}

	var raw []byte
	if err := lc.remote.Get(ctx, key, &raw); err != nil {
		return err
	}
	_ = lc.memCache.Set(ctx, key, raw, lc.ttl)
	return decodeValue(raw, dest)
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.memCache.Delete(ctx, keys...)
	return lc.remote.Delete(ctx, keys...)
}

func (lc *LayeredCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	return lc.remote.Exists(ctx, keys...)
}

// MSet writes the batch to remote and only then refreshes memory, so a failed
// remote write leaves no L1 entries behind.
func (lc *LayeredCache) MSet(ctx context.Context, values map[string]interface{}, expiration time.Duration) error {
	if err := lc.remote.MSet(ctx, values, expiration); err != nil {
		return err
	}
	_ = lc.memCache.MSet(ctx, values, lc.memTTL(expiration))
	return nil
}

// MGet serves what it can from memory and fetches the rest from remote.
func (lc *LayeredCache) MGet(ctx context.Context, keys ...string) (map[string]string, error) {
	out, _ := lc.memCache.MGet(ctx, keys...)
	missing := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := out[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := lc.remote.MGet(ctx, missing...)
	if err != nil {
		return nil, err
	}
	for k, v := range fetched {
		out[k] = v
		_ = lc.memCache.Set(ctx, k, v, lc.ttl)
	}
	return out, nil
}

// Close stops the memory layer. The remote client is closed by its owner.
func (lc *LayeredCache) Close() error {
	return lc.memCache.Close()
}
