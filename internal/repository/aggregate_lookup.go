package repository

import (
	"context"
	"errors"

	"SentiTrader/internal/domain/models"
	domrepo "SentiTrader/internal/domain/repository"
	applogger "SentiTrader/pkg/logger"
)

var _ domrepo.AggregateReader = (*AggregateLookup)(nil)

// AggregateLookup reads aggregates from the cache and falls back to the store.
type AggregateLookup struct {
	cache   *RedisAggregateCache
	store   domrepo.AggregateStore
	windows []string
	l       *applogger.Logger
}

func NewAggregateLookup(c *RedisAggregateCache, store domrepo.AggregateStore, windows []string, l *applogger.Logger) *AggregateLookup {
	if l == nil {
		l = applogger.NewNop()
	}
	return &AggregateLookup{cache: c, store: store, windows: windows, l: l}
}

func (a *AggregateLookup) Latest(ctx context.Context, ticker, window string) (*models.AggregateRecord, error) {
	rec, err := a.cache.Get(ctx, ticker, window)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, models.ErrNoAggregate) {
		a.l.Warn("aggregate cache read failed, using store",
			applogger.String("ticker", ticker), applogger.Error(err))
	}
	return a.store.Latest(ctx, ticker, window)
}

// LatestAny returns the freshest aggregate across all configured windows.
func (a *AggregateLookup) LatestAny(ctx context.Context, ticker string) (*models.AggregateRecord, error) {
	recs, err := a.cache.GetMany(ctx, ticker, a.windows)
	if err != nil {
		a.l.Warn("aggregate cache read failed, using store",
			applogger.String("ticker", ticker), applogger.Error(err))
	}
	var best *models.AggregateRecord
	for i := range recs {
		if best == nil || recs[i].AsOf.After(best.AsOf) {
			best = &recs[i]
		}
	}
	if best != nil {
		return best, nil
	}
	return a.store.LatestAny(ctx, ticker)
}
