package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SentiTrader/internal/domain/models"
)

type utcDay struct{}

func (utcDay) DayStart(at time.Time) time.Time { return at.UTC().Truncate(24 * time.Hour) }

func newTestPortfolio() (*Portfolio, *memLedger, *fakeBroker) {
	ledger := newMemLedger()
	broker := newFakeBroker()
	p := NewPortfolio(ledger, broker, nil, utcDay{}, dec("100000"), nil)
	p.now = func() time.Time { return genNow }
	return p, ledger, broker
}

func TestPortfolioState(t *testing.T) {
	p, ledger, _ := newTestPortfolio()
	ledger.summary = models.LedgerSummary{
		PositionCount: 2,
		MarketValue:   dec("20000"),
		UnrealizedPnl: dec("500"),
		RealizedPnl:   dec("-1000"),
		DailyPnl:      dec("-2500"),
	}

	s, err := p.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, s.PositionCount)
	assert.True(t, s.Cash.Equal(dec("79000")), s.Cash.String())
	assert.True(t, s.TotalValue.Equal(dec("99500")), s.TotalValue.String())
	assert.InDelta(t, -0.025, s.DailyPnlPct, 1e-9)
}

func TestSyncWithBrokerage_KeepsEntryTimestamps(t *testing.T) {
	p, ledger, broker := newTestPortfolio()
	entry := genNow.Add(-3 * time.Hour)
	ledger.positions["AAPL"] = models.Position{Ticker: "AAPL", Quantity: 5, AvgEntryPrice: dec("100"), EntryTimestamp: entry}
	ledger.positions["GONE"] = models.Position{Ticker: "GONE", Quantity: 1, AvgEntryPrice: dec("10"), EntryTimestamp: entry}
	broker.positions["AAPL"] = models.BrokerPosition{Ticker: "AAPL", Quantity: 7, AvgEntryPrice: dec("101"), CurrentPrice: dec("103")}
	broker.positions["NVDA"] = models.BrokerPosition{Ticker: "NVDA", Quantity: 2, AvgEntryPrice: dec("400"), CurrentPrice: dec("410")}

	n, err := p.SyncWithBrokerage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, ledger.positions, 2)
	aapl := ledger.positions["AAPL"]
	assert.Equal(t, int64(7), aapl.Quantity)
	assert.True(t, aapl.AvgEntryPrice.Equal(dec("101")))
	assert.Equal(t, entry, aapl.EntryTimestamp)
	assert.Equal(t, genNow, ledger.positions["NVDA"].EntryTimestamp)
	assert.NotContains(t, ledger.positions, "GONE")
}

func TestUpdatePositionPrices_OnlyHeldTickers(t *testing.T) {
	p, ledger, broker := newTestPortfolio()
	ledger.positions["AAPL"] = models.Position{Ticker: "AAPL", Quantity: 5, AvgEntryPrice: dec("100")}
	broker.positions["AAPL"] = models.BrokerPosition{Ticker: "AAPL", Quantity: 9, CurrentPrice: dec("104"), UnrealizedPnl: dec("20")}
	broker.positions["NVDA"] = models.BrokerPosition{Ticker: "NVDA", Quantity: 2, CurrentPrice: dec("410")}

	n, err := p.UpdatePositionPrices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	aapl := ledger.positions["AAPL"]
	assert.Equal(t, int64(5), aapl.Quantity)
	assert.True(t, aapl.CurrentPrice.Equal(dec("104")))
	assert.True(t, aapl.UnrealizedPnl.Equal(dec("20")))
	assert.NotContains(t, ledger.positions, "NVDA")
}

func TestUpdatePositionPrices_NothingHeld(t *testing.T) {
	p, ledger, _ := newTestPortfolio()
	n, err := p.UpdatePositionPrices(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Nil(t, ledger.prices)
}

func TestPortfolioTrades_DefaultRange(t *testing.T) {
	p, ledger, _ := newTestPortfolio()
	ledger.trades = []models.Trade{{Ticker: "AAPL"}}

	got, err := p.Trades(context.Background(), time.Time{}, time.Time{}, 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = p.Trades(context.Background(), genNow, genNow.Add(-time.Hour), 10)
	require.ErrorIs(t, err, models.ErrInvalidQuery)
}

func TestPortfolioAccount(t *testing.T) {
	p, _, broker := newTestPortfolio()
	broker.account = models.Account{Cash: dec("5"), Equity: dec("120000"), BuyingPower: dec("240000")}

	bp, err := p.BuyingPower(context.Background())
	require.NoError(t, err)
	assert.True(t, bp.Equal(dec("240000")))
	eq, err := p.AccountValue(context.Background())
	require.NoError(t, err)
	assert.True(t, eq.Equal(dec("120000")))
	open, err := p.IsMarketOpen(context.Background())
	require.NoError(t, err)
	assert.True(t, open)
}

func TestSyncWithBrokerage_DoesNotDropConcurrentFill(t *testing.T) {
	ctx := context.Background()
	guard := NewPositionGuard()
	ledger := newMemLedger()
	broker := newFakeBroker()
	broker.fillPrice = dec("100")
	broker.pollsToFill = 1
	broker.positionsCalled = make(chan struct{}, 1)
	broker.positionsGate = make(chan struct{})

	p := NewPortfolio(ledger, broker, guard, utcDay{}, dec("100000"), nil)
	exec := NewOrderExecutor(ExecutorConfig{}, broker, ledger, guard, nil, nil)
	exec.sleep = func(context.Context, time.Duration) error { return nil }

	syncDone := make(chan error, 1)
	go func() {
		_, err := p.SyncWithBrokerage(ctx)
		syncDone <- err
	}()
	<-broker.positionsCalled

	execDone := make(chan error, 1)
	go func() {
		_, err := exec.Execute(ctx, buySignal("AAPL"), 10)
		execDone <- err
	}()

	// the buy waits while the sync holds its brokerage snapshot
	time.Sleep(20 * time.Millisecond)
	broker.mu.Lock()
	submitted := len(broker.submitted)
	broker.mu.Unlock()
	assert.Zero(t, submitted)

	close(broker.positionsGate)
	require.NoError(t, <-syncDone)
	require.NoError(t, <-execDone)

	pos, err := ledger.Position(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int64(10), pos.Quantity)
}
