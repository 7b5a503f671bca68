package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SentiTrader/internal/domain/models"
)

type executorFixture struct {
	exec    *OrderExecutor
	broker  *fakeBroker
	ledger  *memLedger
	clock   *fakeClock
	metrics *countingMetrics
	waits   []time.Duration
}

func newExecutorFixture() *executorFixture {
	f := &executorFixture{
		broker:  newFakeBroker(),
		ledger:  newMemLedger(),
		clock:   &fakeClock{t: genNow},
		metrics: newCountingMetrics(),
	}
	f.broker.fillPrice = dec("100")
	f.broker.pollsToFill = 1
	f.exec = NewOrderExecutor(ExecutorConfig{}, f.broker, f.ledger, nil, f.metrics, nil)
	f.exec.now = f.clock.Now
	f.exec.sleep = func(ctx context.Context, d time.Duration) error {
		f.waits = append(f.waits, d)
		return f.clock.Sleep(ctx, d)
	}
	return f
}

func TestExecuteBuy_RetriesSubmission(t *testing.T) {
	f := newExecutorFixture()
	f.broker.submitErrs = []error{errors.New("503"), errors.New("503"), nil}

	res, err := f.exec.Execute(context.Background(), buySignal("AAPL"), 10)
	require.NoError(t, err)
	assert.True(t, res.Filled)
	assert.Equal(t, models.OrderFilled, res.Status)
	assert.Len(t, f.broker.submitted, 3)
	// two backoffs, then one poll interval
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, time.Second}, f.waits)

	pos := f.ledger.positions["AAPL"]
	assert.Equal(t, int64(10), pos.Quantity)
	assert.True(t, pos.AvgEntryPrice.Equal(dec("100")))
	require.Len(t, f.ledger.trades, 1)
	assert.Equal(t, "ord-AAPL", f.ledger.trades[0].OrderID)
	assert.True(t, f.ledger.trades[0].TotalValue.Equal(dec("1000")))
	assert.Equal(t, 1, f.metrics.orders["BUY/filled"])
}

func TestExecuteBuy_GivesUpAfterMaxAttempts(t *testing.T) {
	f := newExecutorFixture()
	f.broker.submitErrs = []error{errors.New("503"), errors.New("503"), errors.New("503")}

	res, err := f.exec.Execute(context.Background(), buySignal("AAPL"), 10)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Len(t, f.broker.submitted, 3)
	assert.Empty(t, f.ledger.trades)
	assert.Empty(t, f.ledger.positions)
	assert.Equal(t, 1, f.metrics.orders["BUY/error"])
}

func TestExecuteBuy_FillTimeout(t *testing.T) {
	f := newExecutorFixture()
	f.broker.pollsToFill = 1 << 20

	res, err := f.exec.Execute(context.Background(), buySignal("AAPL"), 10)
	require.NoError(t, err)
	assert.False(t, res.Filled)
	assert.Equal(t, models.OrderTimeout, res.Status)
	assert.Len(t, f.broker.submitted, 1, "unfilled orders are not resubmitted")
	assert.Empty(t, f.ledger.trades)
	assert.Equal(t, genNow.Add(30*time.Second), f.clock.Now())
}

func TestExecuteBuy_TerminalStatus(t *testing.T) {
	f := newExecutorFixture()
	f.broker.fillStatus = models.OrderRejected

	res, err := f.exec.Execute(context.Background(), buySignal("AAPL"), 10)
	require.NoError(t, err)
	assert.False(t, res.Filled)
	assert.Equal(t, models.OrderRejected, res.Status)
	assert.Empty(t, f.ledger.positions)
}

func TestExecuteBuy_AveragesIntoPosition(t *testing.T) {
	f := newExecutorFixture()
	ctx := context.Background()

	_, err := f.exec.Execute(ctx, buySignal("AAPL"), 10)
	require.NoError(t, err)
	entry := f.ledger.positions["AAPL"].EntryTimestamp

	f.broker.fillPrice = dec("110")
	f.broker.polls = 0
	_, err = f.exec.Execute(ctx, buySignal("AAPL"), 10)
	require.NoError(t, err)

	pos := f.ledger.positions["AAPL"]
	assert.Equal(t, int64(20), pos.Quantity)
	assert.True(t, pos.AvgEntryPrice.Equal(dec("105")), pos.AvgEntryPrice.String())
	assert.Equal(t, entry, pos.EntryTimestamp)
}

func TestExecuteBuy_RejectsZeroQuantity(t *testing.T) {
	f := newExecutorFixture()
	_, err := f.exec.Execute(context.Background(), buySignal("AAPL"), 0)
	require.Error(t, err)
	assert.Empty(t, f.broker.submitted)
}

func TestExecuteBuy_LedgerFailureAfterFill(t *testing.T) {
	f := newExecutorFixture()
	f.ledger.err = errors.New("db down")

	res, err := f.exec.Execute(context.Background(), buySignal("AAPL"), 10)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Filled)
}

func TestExecuteSell_ClosesBrokerageQuantity(t *testing.T) {
	f := newExecutorFixture()
	entry := genNow.Add(-20 * time.Minute)
	f.ledger.positions["AAPL"] = models.Position{
		Ticker: "AAPL", Quantity: 15, AvgEntryPrice: dec("104"), EntryTimestamp: entry,
	}
	f.broker.positions["AAPL"] = models.BrokerPosition{Ticker: "AAPL", Quantity: 20, AvgEntryPrice: dec("105")}
	f.broker.fillPrice = dec("110")

	sig := sellSignal("AAPL")
	sig.Reason = "Take profit: 4.8% gain"
	res, err := f.exec.Execute(context.Background(), sig, 0)
	require.NoError(t, err)
	assert.True(t, res.Filled)
	assert.Equal(t, int64(20), res.Quantity)
	assert.Equal(t, int64(20), f.broker.submitted[0].Quantity)
	assert.True(t, res.Pnl.Equal(dec("100")), res.Pnl.String())

	assert.NotContains(t, f.ledger.positions, "AAPL")
	require.Len(t, f.ledger.closed, 1)
	closed := f.ledger.closed[0]
	assert.Equal(t, entry, closed.EntryTimestamp)
	assert.True(t, closed.RealizedPnl.Equal(dec("100")))
	require.Len(t, f.ledger.trades, 1)
	assert.Equal(t, "Take profit: 4.8% gain", f.ledger.trades[0].SignalReason)
}

func TestExecuteSell_NoBrokeragePosition(t *testing.T) {
	f := newExecutorFixture()
	_, err := f.exec.Execute(context.Background(), sellSignal("AAPL"), 0)
	require.ErrorIs(t, err, models.ErrPositionNotFound)
	assert.Empty(t, f.broker.submitted)
}

func TestExecute_UnknownAction(t *testing.T) {
	f := newExecutorFixture()
	sig := buySignal("AAPL")
	sig.Action = "HOLD"
	_, err := f.exec.Execute(context.Background(), sig, 1)
	require.ErrorIs(t, err, models.ErrUnknownAction)
}

func TestWaitForFill_CancelledContext(t *testing.T) {
	f := newExecutorFixture()
	f.broker.pollsToFill = 1 << 20
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	final := f.exec.waitForFill(ctx, &models.Order{ID: "ord-1", Status: models.OrderAccepted})
	assert.Equal(t, models.OrderTimeout, final.Status)
}
