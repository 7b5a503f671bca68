package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"SentiTrader/internal/domain/models"
	"SentiTrader/internal/usecase"
	pkgkafka "SentiTrader/pkg/kafka"
)

var now = time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu      sync.Mutex
	batches [][]pkgkafka.Record
	// errs[i] is returned alongside batches[i]
	errs    []error
	commits [][]pkgkafka.Record
}

func (f *fakeSource) ReadBatch(ctx context.Context, _ int) ([]pkgkafka.Record, error) {
	f.mu.Lock()
	if len(f.batches) == 0 {
		f.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	b := f.batches[0]
	f.batches = f.batches[1:]
	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	}
	f.mu.Unlock()
	return b, err
}

func (f *fakeSource) commitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.commits)
}

func (f *fakeSource) Commit(_ context.Context, recs []pkgkafka.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits = append(f.commits, recs)
	return nil
}

func jsonRecord(v interface{}) pkgkafka.Record {
	b, _ := json.Marshal(v)
	return pkgkafka.Record{Value: b, Time: now}
}

type fakeAggregation struct {
	mu       sync.Mutex
	events   []*models.SentimentEvent
	cycles   int
	cleanups int
	err      error
}

func (f *fakeAggregation) Ingest(e *models.SentimentEvent, _ time.Time) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return len(e.Symbols())
}

func (f *fakeAggregation) RunCycle(context.Context, time.Time) ([]models.AggregateRecord, error) {
	f.cycles++
	return nil, f.err
}

func (f *fakeAggregation) Cleanup(time.Time, time.Duration) int {
	f.cleanups++
	return 0
}

type fakeGeneration struct {
	open []string
	runs [][]string
}

func (f *fakeGeneration) Run(_ context.Context, tickers []string) []*models.Signal {
	f.runs = append(f.runs, tickers)
	return nil
}

func (f *fakeGeneration) OpenTickers(context.Context) ([]string, error) { return f.open, nil }

type fakeRisk struct {
	decision models.Decision
	qty      int64
	resets   int
	checked  []*models.Signal
}

func (f *fakeRisk) Check(_ context.Context, sig *models.Signal, _ usecase.StateProvider) (models.Decision, models.PortfolioState) {
	f.checked = append(f.checked, sig)
	return f.decision, models.PortfolioState{}
}

func (f *fakeRisk) SizePosition(models.PortfolioState, decimal.Decimal) int64 { return f.qty }

func (f *fakeRisk) Reset() { f.resets++ }

type execCall struct {
	ctx context.Context
	sig *models.Signal
	qty int64
}

type fakeExecutor struct {
	calls []execCall
	err   error
}

func (f *fakeExecutor) Execute(ctx context.Context, sig *models.Signal, qty int64) (*models.ExecutionResult, error) {
	f.calls = append(f.calls, execCall{ctx: ctx, sig: sig, qty: qty})
	if f.err != nil {
		return nil, f.err
	}
	return &models.ExecutionResult{Ticker: sig.Ticker, Action: sig.Action, Quantity: qty, Status: models.OrderFilled, Filled: true}, nil
}

type noState struct{}

func (noState) State(context.Context) (models.PortfolioState, error) {
	return models.PortfolioState{}, nil
}

type dayCalendar struct{}

func (dayCalendar) TradingDay(at time.Time) string { return at.Format("2006-01-02") }

type fakeReconcilable struct {
	mu      sync.Mutex
	syncs   int
	updates int
}

func (f *fakeReconcilable) SyncWithBrokerage(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncs++
	return 0, nil
}

func (f *fakeReconcilable) UpdatePositionPrices(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	return 0, nil
}

func (f *fakeReconcilable) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.syncs, f.updates
}
