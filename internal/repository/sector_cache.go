package repository

import (
	"context"
	"errors"
	"time"

	domrepo "SentiTrader/internal/domain/repository"
	"SentiTrader/pkg/cache"
)

var _ domrepo.SectorReference = (*CachedSectorReference)(nil)

// CachedSectorReference memoizes sector lookups in process. Unknown tickers
// are cached too so the reference table is not hit on every BUY.
type CachedSectorReference struct {
	next  domrepo.SectorReference
	cache cache.Service
	ttl   time.Duration
}

func NewCachedSectorReference(next domrepo.SectorReference, c cache.Service, ttl time.Duration) *CachedSectorReference {
	return &CachedSectorReference{next: next, cache: c, ttl: ttl}
}

func (s *CachedSectorReference) Sector(ctx context.Context, ticker string) (string, error) {
	key := cache.GenerateKey("sector", ticker)
	var sector string
	err := s.cache.Get(ctx, key, &sector)
	if err == nil {
		return sector, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		return "", err
	}

	sector, err = s.next.Sector(ctx, ticker)
	if err != nil {
		return "", err
	}
	_ = s.cache.Set(ctx, key, sector, s.ttl)
	return sector, nil
}
