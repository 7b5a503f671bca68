package cache

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	data     []byte
	expireAt time.Time
	lastUsed time.Time
}

// MemoryCache is an in-process Service with TTL expiry and LRU eviction.
// Values are stored encoded so Get can decode into any destination type.
type MemoryCache struct {
	mu      sync.Mutex
	items   map[string]*memoryItem
	maxSize int
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxSize:         1000,
		CleanupInterval: 5 * time.Minute,
		Now:             time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	mc := &MemoryCache{
		items:   make(map[string]*memoryItem),
		maxSize: cfg.MaxSize,
		now:     cfg.Now,
		stop:    make(chan struct{}),
	}
	if cfg.CleanupInterval > 0 {
		go mc.cleanupLoop(cfg.CleanupInterval)
	}
	return mc
}

// Close stops the background cleanup.
func (mc *MemoryCache) Close() error {
	mc.once.Do(func() { close(mc.stop) })
	return nil
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encodeValue(value)
	if err != nil {
		return err
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.setLocked(key, data, expiration)
	return nil
}

func (mc *MemoryCache) setLocked(key string, data []byte, expiration time.Duration) {
	now := mc.now()
	if _, ok := mc.items[key]; !ok && len(mc.items) >= mc.maxSize {
		mc.evictLRU()
	}
	var expireAt time.Time
	if expiration > 0 {
		expireAt = now.Add(expiration)
	}
	mc.items[key] = &memoryItem{data: data, expireAt: expireAt, lastUsed: now}
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	item, ok := mc.lookupLocked(key)
	var data []byte
	if ok {
		data = item.data
	}
	mc.mu.Unlock()

	if !ok {
		return ErrCacheMiss
	}
	return decodeValue(data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		delete(mc.items, key)
	}
	return nil
}

func (mc *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		if _, ok := mc.lookupLocked(key); ok {
			return true, nil
		}
	}
	return false, nil
}

func (mc *MemoryCache) MSet(_ context.Context, values map[string]interface{}, expiration time.Duration) error {
	encoded := make(map[string][]byte, len(values))
	for k, v := range values {
		data, err := encodeValue(v)
		if err != nil {
			return err
		}
		encoded[k] = data
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	for k, data := range encoded {
		mc.setLocked(k, data, expiration)
	}
	return nil
}

func (mc *MemoryCache) MGet(_ context.Context, keys ...string) (map[string]string, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	out := make(map[string]string, len(keys))
	for _, key := range keys {
		if item, ok := mc.lookupLocked(key); ok {
			out[key] = string(item.data)
		}
	}
	return out, nil
}

// Len returns the number of stored items, expired ones included until cleanup.
func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return len(mc.items)
}

func (mc *MemoryCache) lookupLocked(key string) (*memoryItem, bool) {
	item, ok := mc.items[key]
	if !ok {
		return nil, false
	}
	now := mc.now()
	if !item.expireAt.IsZero() && now.After(item.expireAt) {
		delete(mc.items, key)
		return nil, false
	}
	item.lastUsed = now
	return item, true
}

func (mc *MemoryCache) evictLRU() {
	var oldestKey string
	var oldest time.Time
	for k, item := range mc.items {
		if oldestKey == "" || item.lastUsed.Before(oldest) {
			oldestKey, oldest = k, item.lastUsed
		}
	}
	if oldestKey != "" {
		delete(mc.items, oldestKey)
	}
}

func (mc *MemoryCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			mc.purgeExpired()
		case <-mc.stop:
			return
		}
	}
}

func (mc *MemoryCache) purgeExpired() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	now := mc.now()
	for k, item := range mc.items {
		if !item.expireAt.IsZero() && now.After(item.expireAt) {
			delete(mc.items, k)
		}
	}
}
