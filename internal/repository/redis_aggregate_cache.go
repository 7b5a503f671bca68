package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SentiTrader/internal/domain/models"
	domrepo "SentiTrader/internal/domain/repository"
	"SentiTrader/pkg/cache"
)

var _ domrepo.AggregateCache = (*RedisAggregateCache)(nil)

// RedisAggregateCache stores the latest aggregate per ticker and window under
// "sentiment:{ticker}:{window}".
type RedisAggregateCache struct {
	c cache.Service
}

func NewRedisAggregateCache(c cache.Service) *RedisAggregateCache {
	return &RedisAggregateCache{c: c}
}

// SetBatch writes all records in one transaction with a shared TTL.
func (r *RedisAggregateCache) SetBatch(ctx context.Context, records []models.AggregateRecord, ttl time.Duration) error {
	if len(records) == 0 {
		return nil
	}
	values := make(map[string]interface{}, len(records))
	for _, rec := range records {
		values[rec.CacheKey()] = rec
	}
	if err := r.c.MSet(ctx, values, ttl); err != nil {
		return fmt.Errorf("cache aggregates: %w", err)
	}
	return nil
}

func (r *RedisAggregateCache) Get(ctx context.Context, ticker, window string) (*models.AggregateRecord, error) {
	var rec models.AggregateRecord
	err := r.c.Get(ctx, models.AggregateCacheKey(ticker, window), &rec)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, models.ErrNoAggregate
	}
	if err != nil {
		return nil, fmt.Errorf("read cached aggregate: %w", err)
	}
	return &rec, nil
}

// GetMany returns cached records for every window that is present.
func (r *RedisAggregateCache) GetMany(ctx context.Context, ticker string, windows []string) ([]models.AggregateRecord, error) {
	keys := make([]string, len(windows))
	for i, w := range windows {
		keys[i] = models.AggregateCacheKey(ticker, w)
	}
	found, err := cache.MGetTyped[models.AggregateRecord](ctx, r.c, keys...)
	if err != nil {
		return nil, fmt.Errorf("read cached aggregates: %w", err)
	}
	out := make([]models.AggregateRecord, 0, len(found))
	for _, k := range keys {
		if rec, ok := found[k]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}
