package worker

import (
	"context"
	"time"

	drepo "SentiTrader/internal/domain/repository"
	applogger "SentiTrader/pkg/logger"
)

// Reconcilable is the brokerage reconciliation side of usecase.Portfolio.
type Reconcilable interface {
	SyncWithBrokerage(ctx context.Context) (int, error)
	UpdatePositionPrices(ctx context.Context) (int, error)
}

// Reconciler keeps local positions in line with the brokerage: a full sync at
// start and every syncEvery, and a price refresh every priceEvery. The
// periodic sync also picks up partial fills the executor reported as unfilled.
type Reconciler struct {
	p          Reconcilable
	priceEvery time.Duration
	syncEvery  time.Duration
	metrics    drepo.Metrics
	l          *applogger.Logger
}

func NewReconciler(p Reconcilable, priceEvery, syncEvery time.Duration, metrics drepo.Metrics, l *applogger.Logger) *Reconciler {
	if priceEvery <= 0 {
		priceEvery = 30 * time.Second
	}
	if syncEvery <= 0 {
		syncEvery = 5 * time.Minute
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &Reconciler{
		p:          p,
		priceEvery: priceEvery,
		syncEvery:  syncEvery,
		metrics:    metrics,
		l:          l.With(applogger.String("component", "reconciler")),
	}
}

func (r *Reconciler) Name() string { return "reconciler" }

func (r *Reconciler) Run(ctx context.Context) error {
	r.sync(ctx)

	prices := time.NewTicker(r.priceEvery)
	defer prices.Stop()
	syncs := time.NewTicker(r.syncEvery)
	defer syncs.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-prices.C:
			r.refresh(ctx)
		case <-syncs.C:
			r.sync(ctx)
		}
	}
}

func (r *Reconciler) sync(ctx context.Context) {
	n, err := r.p.SyncWithBrokerage(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.l.Warn("sync with brokerage", applogger.Error(err))
			r.recordError("reconcile_sync")
		}
		return
	}
	r.l.Debug("positions synced", applogger.Int("positions", n))
}

func (r *Reconciler) refresh(ctx context.Context) {
	if _, err := r.p.UpdatePositionPrices(ctx); err != nil && ctx.Err() == nil {
		r.l.Warn("refresh position prices", applogger.Error(err))
		r.recordError("reconcile_prices")
	}
}

func (r *Reconciler) recordError(kind string) {
	if r.metrics != nil {
		r.metrics.RecordError(kind)
	}
}
