package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"SentiTrader/internal/domain/models"
)

// memLedger is an in-memory ledger.
type memLedger struct {
	mu        sync.Mutex
	positions map[string]models.Position
	trades    []models.Trade
	closed    []models.ClosedPosition
	sectors   map[string]string
	summary   models.LedgerSummary
	err       error
	prices    map[string]models.BrokerPosition
}

func newMemLedger() *memLedger {
	return &memLedger{positions: map[string]models.Position{}, sectors: map[string]string{}}
}

func (m *memLedger) Position(_ context.Context, ticker string) (*models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.positions[ticker]
	if !ok {
		return nil, models.ErrPositionNotFound
	}
	return &p, nil
}

func (m *memLedger) Positions(context.Context) ([]models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]models.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}

func (m *memLedger) Summary(context.Context, time.Time) (models.LedgerSummary, error) {
	return m.summary, m.err
}

func (m *memLedger) SectorExposure(_ context.Context, sector string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for t, p := range m.positions {
		if m.sectors[t] == sector {
			total = total.Add(p.MarketValue())
		}
	}
	return total, m.err
}

func (m *memLedger) Sector(_ context.Context, ticker string) (string, error) {
	return m.sectors[ticker], nil
}

func (m *memLedger) RecordBuy(_ context.Context, t models.Trade) (*models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.trades = append(m.trades, t)
	var existing *models.Position
	if p, ok := m.positions[t.Ticker]; ok {
		existing = &p
	}
	p := models.ApplyBuyFill(existing, t.Ticker, t.Quantity, t.Price, t.Timestamp)
	m.positions[t.Ticker] = p
	return &p, nil
}

func (m *memLedger) RecordSell(_ context.Context, t models.Trade, c models.ClosedPosition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.trades = append(m.trades, t)
	m.closed = append(m.closed, c)
	delete(m.positions, t.Ticker)
	return nil
}

func (m *memLedger) ReplacePositions(_ context.Context, ps []models.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions = map[string]models.Position{}
	for _, p := range ps {
		m.positions[p.Ticker] = p
	}
	return nil
}

func (m *memLedger) UpdatePrices(_ context.Context, prices map[string]models.BrokerPosition, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices = prices
	for t, bp := range prices {
		p, ok := m.positions[t]
		if !ok {
			continue
		}
		p.CurrentPrice = bp.CurrentPrice
		p.UnrealizedPnl = bp.UnrealizedPnl
		p.LastUpdated = at
		m.positions[t] = p
	}
	return nil
}

func (m *memLedger) Trades(context.Context, time.Time, time.Time, int) ([]models.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Trade(nil), m.trades...), nil
}

func (m *memLedger) Init(context.Context) error   { return nil }
func (m *memLedger) Health(context.Context) error { return nil }
func (m *memLedger) Close() error                 { return nil }

// fakeBroker fills orders according to fillStatus after pollsToFill lookups.
type fakeBroker struct {
	mu          sync.Mutex
	submitErrs  []error
	submitted   []models.OrderRequest
	fillStatus  models.OrderStatus
	fillPrice   decimal.Decimal
	pollsToFill int
	polls       int
	positions   map[string]models.BrokerPosition
	account     models.Account
	open        bool

	// when set, Positions signals positionsCalled and blocks until the gate closes
	positionsCalled chan struct{}
	positionsGate   chan struct{}
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{fillStatus: models.OrderFilled, positions: map[string]models.BrokerPosition{}, open: true}
}

func (b *fakeBroker) SubmitOrder(_ context.Context, req models.OrderRequest) (*models.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submitted = append(b.submitted, req)
	if len(b.submitErrs) > 0 {
		err := b.submitErrs[0]
		b.submitErrs = b.submitErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &models.Order{ID: "ord-" + req.Ticker, Ticker: req.Ticker, Status: models.OrderAccepted}, nil
}

func (b *fakeBroker) GetOrder(_ context.Context, id string) (*models.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.polls++
	if b.polls < b.pollsToFill {
		return &models.Order{ID: id, Status: models.OrderAccepted}, nil
	}
	o := &models.Order{ID: id, Status: b.fillStatus}
	if b.fillStatus == models.OrderFilled {
		last := b.submitted[len(b.submitted)-1]
		o.FilledQty = last.Quantity
		o.FilledAvgPrice = b.fillPrice
	}
	return o, nil
}

func (b *fakeBroker) Position(_ context.Context, ticker string) (*models.BrokerPosition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.positions[ticker]
	if !ok {
		return nil, models.ErrPositionNotFound
	}
	return &p, nil
}

func (b *fakeBroker) Positions(context.Context) ([]models.BrokerPosition, error) {
	if b.positionsGate != nil {
		select {
		case b.positionsCalled <- struct{}{}:
		default:
		}
		<-b.positionsGate
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.BrokerPosition, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p)
	}
	return out, nil
}

func (b *fakeBroker) Account(context.Context) (*models.Account, error) {
	return &b.account, nil
}

func (b *fakeBroker) IsMarketOpen(context.Context) (bool, error) { return b.open, nil }

// fakeClock is a manual clock whose sleep advances time.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
	return nil
}

type staticMarketClock struct{ open bool }

func (s staticMarketClock) IsOpen(context.Context, time.Time) (bool, error) { return s.open, nil }

type fakeAggregates struct {
	latest    map[string]*models.AggregateRecord
	latestAny map[string]*models.AggregateRecord
}

func (f *fakeAggregates) Latest(_ context.Context, ticker, window string) (*models.AggregateRecord, error) {
	if r, ok := f.latest[ticker+"/"+window]; ok {
		return r, nil
	}
	return nil, models.ErrNoAggregate
}

func (f *fakeAggregates) LatestAny(_ context.Context, ticker string) (*models.AggregateRecord, error) {
	if r, ok := f.latestAny[ticker]; ok {
		return r, nil
	}
	return nil, models.ErrNoAggregate
}

type fakeMarket struct {
	snaps map[string]*models.MarketSnapshot
	calls int
}

func (f *fakeMarket) Snapshot(_ context.Context, ticker string, _ int) (*models.MarketSnapshot, error) {
	f.calls++
	if s, ok := f.snaps[ticker]; ok {
		return s, nil
	}
	return nil, models.ErrNoMarketData
}

// mockSignalPublisher verifies publish calls.
type mockSignalPublisher struct{ mock.Mock }

func (m *mockSignalPublisher) PublishSignal(ctx context.Context, s *models.Signal) error {
	return m.Called(ctx, s).Error(0)
}

type memAggregateStore struct {
	batches [][]models.AggregateRecord
	err     error
}

func (m *memAggregateStore) Init(context.Context) error { return nil }
func (m *memAggregateStore) StoreBatch(_ context.Context, rs []models.AggregateRecord) error {
	if m.err != nil {
		return m.err
	}
	m.batches = append(m.batches, rs)
	return nil
}
func (m *memAggregateStore) Latest(context.Context, string, string) (*models.AggregateRecord, error) {
	return nil, models.ErrNoAggregate
}
func (m *memAggregateStore) LatestAny(context.Context, string) (*models.AggregateRecord, error) {
	return nil, models.ErrNoAggregate
}
func (m *memAggregateStore) Health(context.Context) error { return nil }
func (m *memAggregateStore) Close() error                 { return nil }

type memAggregateCache struct {
	records map[string]models.AggregateRecord
	ttl     time.Duration
}

func (m *memAggregateCache) SetBatch(_ context.Context, rs []models.AggregateRecord, ttl time.Duration) error {
	if m.records == nil {
		m.records = map[string]models.AggregateRecord{}
	}
	m.ttl = ttl
	for _, r := range rs {
		m.records[r.CacheKey()] = r
	}
	return nil
}

func (m *memAggregateCache) Get(_ context.Context, ticker, window string) (*models.AggregateRecord, error) {
	r, ok := m.records[models.AggregateCacheKey(ticker, window)]
	if !ok {
		return nil, models.ErrNoAggregate
	}
	return &r, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// countingMetrics records what the pipeline reported.
type countingMetrics struct {
	mu         sync.Mutex
	datapoints int
	aggregates map[string]int
	signals    map[models.Action]int
	decisions  map[bool]int
	orders     map[string]int
	latencies  int
	killSwitch []bool
	errors     map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{
		aggregates: map[string]int{},
		signals:    map[models.Action]int{},
		decisions:  map[bool]int{},
		orders:     map[string]int{},
		errors:     map[string]int{},
	}
}

func (c *countingMetrics) RecordDatapoints(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.datapoints += n
}

func (c *countingMetrics) RecordAggregates(window string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aggregates[window] += n
}

func (c *countingMetrics) RecordSignal(a models.Action) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signals[a]++
}

func (c *countingMetrics) RecordDecision(_ models.Action, accepted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decisions[accepted]++
}

func (c *countingMetrics) RecordOrder(a models.Action, status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orders[string(a)+"/"+status]++
}

func (c *countingMetrics) RecordOrderLatency(float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latencies++
}

func (c *countingMetrics) SetKillSwitch(halted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.killSwitch = append(c.killSwitch, halted)
}

func (c *countingMetrics) RecordError(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors[kind]++
}

type stateFunc func(ctx context.Context) (models.PortfolioState, error)

func (f stateFunc) State(ctx context.Context) (models.PortfolioState, error) { return f(ctx) }
