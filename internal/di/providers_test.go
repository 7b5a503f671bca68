package di

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SentiTrader/internal/domain/models"
	"SentiTrader/internal/service/brokerage"
	"SentiTrader/internal/worker"
	"SentiTrader/pkg/config"
	applogger "SentiTrader/pkg/logger"
)

func defaultConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	return cfg
}

func TestStrategyParams_FromConfig(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Strategy.MaxHoldSeconds = 90

	p := StrategyParams(cfg)
	assert.Equal(t, "5min", p.SignalWindow)
	assert.Equal(t, 0.7, p.SentimentThreshold)
	assert.Equal(t, 15, p.MinMentions)
	assert.Equal(t, 90*time.Second, p.MaxHold)
	assert.Equal(t, 20, p.MarketBars)
}

func TestRiskLimits_FromConfig(t *testing.T) {
	cfg := defaultConfig(t)

	r := RiskLimits(cfg)
	assert.True(t, r.StartingCapital.Equal(decimal.NewFromInt(100000)))
	assert.Equal(t, 5, r.MaxPositions)
	assert.Equal(t, 0.30, r.MaxSectorExposurePct)
	assert.True(t, r.KillSwitchEnabled)
	assert.True(t, r.TargetNotional().Equal(decimal.NewFromInt(10000)))
}

func TestProvideLayeredCache_MemoryTTLCappedByAggregateTTL(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Aggregator.CacheTTL = 2 * time.Second
	cfg.Aggregator.MemoryCacheTTL = time.Minute

	lc, cleanup := ProvideLayeredCache(cfg, nil)
	defer cleanup()
	assert.Equal(t, 2*time.Second, lc.MemoryTTL())
}

func TestProvideBrokerage_WithoutCredentials(t *testing.T) {
	cfg := defaultConfig(t)

	b, err := ProvideBrokerage(cfg, applogger.NewNop())
	require.NoError(t, err)
	assert.IsType(t, brokerage.Unavailable{}, b)

	_, err = b.Account(context.Background())
	assert.ErrorIs(t, err, models.ErrMissingCredentials)

	md, err := ProvideMarketData(cfg, nil, b)
	require.NoError(t, err)
	_, err = md.Snapshot(context.Background(), "AAPL", 20)
	assert.ErrorIs(t, err, models.ErrMissingCredentials)
}

func TestProvideMarketHours(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.MarketHours.UseBrokerageClock = true

	// without credentials the brokerage clock is not consulted
	h, err := ProvideMarketHours(cfg, brokerage.Unavailable{})
	require.NoError(t, err)

	open, err := h.IsOpen(context.Background(), time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, open)
}

func TestBrokerStages_SkippedWithoutCredentials(t *testing.T) {
	cfg := defaultConfig(t)
	l := applogger.NewNop()

	ew, err := ProvideExecutorWorker(cfg, nil, nil, nil, nil, nil, l)
	require.NoError(t, err)
	assert.Nil(t, ew)
	assert.Nil(t, ProvideReconciler(cfg, nil, nil, l))
}

func TestDisabledStagesOpenNoReader(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Stages.Aggregator = false
	cfg.Stages.Signals = false

	aw, cleanup, err := ProvideAggregatorWorker(cfg, nil, nil, nil)
	require.NoError(t, err)
	cleanup()
	assert.Nil(t, aw)

	sw, cleanup, err := ProvideSignalWorker(cfg, nil, nil, nil)
	require.NoError(t, err)
	cleanup()
	assert.Nil(t, sw)
}

func TestProvideStages_SkipsNil(t *testing.T) {
	assert.Empty(t, ProvideStages(nil, nil, nil, nil))

	rw := worker.NewReconciler(nil, time.Second, time.Minute, nil, nil)
	stages := ProvideStages(nil, nil, nil, rw)
	require.Len(t, stages, 1)
	assert.Equal(t, "reconciler", stages[0].Name())
}
