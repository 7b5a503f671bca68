package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"SentiTrader/internal/domain/models"
	drepo "SentiTrader/internal/domain/repository"
	applogger "SentiTrader/pkg/logger"
	"SentiTrader/pkg/retry"
)

// ExecutorConfig bounds order submission retries and the fill wait.
type ExecutorConfig struct {
	MaxAttempts  int
	BackoffBase  time.Duration
	FillTimeout  time.Duration
	PollInterval time.Duration
}

// OrderExecutor submits market orders, waits for the fill and books the
// result in the ledger. It is the only writer of trades.
type OrderExecutor struct {
	cfg     ExecutorConfig
	broker  drepo.Brokerage
	ledger  drepo.Ledger
	guard   *PositionGuard
	retrier *retry.Retrier
	metrics drepo.Metrics
	l       *applogger.Logger
	now     func() time.Time
	sleep   retry.Sleeper
}

func NewOrderExecutor(cfg ExecutorConfig, broker drepo.Brokerage, ledger drepo.Ledger, guard *PositionGuard, metrics drepo.Metrics, l *applogger.Logger) *OrderExecutor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.FillTimeout <= 0 {
		cfg.FillTimeout = 30 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if guard == nil {
		guard = NewPositionGuard()
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &OrderExecutor{
		cfg:    cfg,
		broker: broker,
		ledger: ledger,
		guard:  guard,
		retrier: retry.New(retry.Config{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.BackoffBase,
			Multiplier:  2,
		}),
		metrics: metrics,
		l:       l.With(applogger.String("component", "order_executor")),
		now:     time.Now,
		sleep:   retry.ContextSleep,
	}
}

// Execute runs an accepted signal. BUY uses qty; SELL always closes the full
// brokerage quantity. An order that does not fill is reported with
// Filled=false and a nil error; it is not resubmitted.
func (e *OrderExecutor) Execute(ctx context.Context, sig *models.Signal, qty int64) (*models.ExecutionResult, error) {
	start := e.now()
	var (
		res *models.ExecutionResult
		err error
	)
	switch sig.Action {
	case models.ActionBuy:
		e.guard.Lock()
		res, err = e.buy(ctx, sig, qty)
		e.guard.Unlock()
	case models.ActionSell:
		e.guard.Lock()
		res, err = e.sell(ctx, sig)
		e.guard.Unlock()
	default:
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownAction, sig.Action)
	}

	if e.metrics != nil {
		status := "error"
		if res != nil {
			status = string(res.Status)
		}
		e.metrics.RecordOrder(sig.Action, status)
		e.metrics.RecordOrderLatency(e.now().Sub(start).Seconds())
	}
	return res, err
}

func (e *OrderExecutor) buy(ctx context.Context, sig *models.Signal, qty int64) (*models.ExecutionResult, error) {
	if qty < 1 {
		return nil, fmt.Errorf("buy %s: quantity must be positive, got %d", sig.Ticker, qty)
	}
	order, err := e.submit(ctx, models.OrderRequest{Ticker: sig.Ticker, Side: models.ActionBuy, Quantity: qty})
	if err != nil {
		return nil, err
	}
	final := e.waitForFill(ctx, order)
	res := &models.ExecutionResult{
		OrderID:   order.ID,
		Ticker:    sig.Ticker,
		Action:    models.ActionBuy,
		Quantity:  qty,
		Status:    final.Status,
		Timestamp: e.now().UTC(),
	}
	if final.Status != models.OrderFilled {
		e.l.Warn("buy not filled",
			applogger.String("ticker", sig.Ticker),
			applogger.String("order_id", order.ID),
			applogger.String("status", string(final.Status)))
		return res, nil
	}

	res.Filled = true
	res.Price = final.FilledAvgPrice
	if final.FilledQty > 0 {
		res.Quantity = final.FilledQty
	}
	trade := models.NewTrade(sig, res.Quantity, res.Price, order.ID, res.Timestamp)
	pos, err := e.ledger.RecordBuy(ctx, trade)
	if err != nil {
		// the brokerage holds shares the ledger does not know about until the next sync
		e.l.Error("record buy fill",
			applogger.String("ticker", sig.Ticker),
			applogger.String("order_id", order.ID),
			applogger.Error(err))
		return res, fmt.Errorf("record buy %s: %w", sig.Ticker, err)
	}
	e.l.Info("buy filled",
		applogger.String("ticker", sig.Ticker),
		applogger.String("order_id", order.ID),
		applogger.Int64("qty", res.Quantity),
		applogger.Stringer("price", res.Price),
		applogger.Int64("position_qty", pos.Quantity),
		applogger.Stringer("avg_entry", pos.AvgEntryPrice))
	return res, nil
}

func (e *OrderExecutor) sell(ctx context.Context, sig *models.Signal) (*models.ExecutionResult, error) {
	held, err := e.broker.Position(ctx, sig.Ticker)
	if err != nil {
		return nil, fmt.Errorf("sell %s: %w", sig.Ticker, err)
	}
	if held.Quantity < 1 {
		return nil, fmt.Errorf("sell %s: %w", sig.Ticker, models.ErrPositionNotFound)
	}

	order, err := e.submit(ctx, models.OrderRequest{Ticker: sig.Ticker, Side: models.ActionSell, Quantity: held.Quantity})
	if err != nil {
		return nil, err
	}
	final := e.waitForFill(ctx, order)
	res := &models.ExecutionResult{
		OrderID:   order.ID,
		Ticker:    sig.Ticker,
		Action:    models.ActionSell,
		Quantity:  held.Quantity,
		Status:    final.Status,
		Timestamp: e.now().UTC(),
	}
	if final.Status != models.OrderFilled {
		e.l.Warn("sell not filled",
			applogger.String("ticker", sig.Ticker),
			applogger.String("order_id", order.ID),
			applogger.String("status", string(final.Status)))
		return res, nil
	}

	res.Filled = true
	res.Price = final.FilledAvgPrice
	res.Pnl = res.Price.Sub(held.AvgEntryPrice).Mul(decimal.NewFromInt(res.Quantity))

	entry := res.Timestamp
	if local, err := e.ledger.Position(ctx, sig.Ticker); err == nil {
		entry = local.EntryTimestamp
	} else if !errors.Is(err, models.ErrPositionNotFound) {
		e.l.Warn("read local position for close", applogger.String("ticker", sig.Ticker), applogger.Error(err))
	}

	trade := models.NewTrade(sig, res.Quantity, res.Price, order.ID, res.Timestamp)
	closed := models.ClosedPosition{
		Ticker:         sig.Ticker,
		Quantity:       res.Quantity,
		AvgEntryPrice:  held.AvgEntryPrice,
		ExitPrice:      res.Price,
		RealizedPnl:    res.Pnl,
		EntryTimestamp: entry,
		ClosedAt:       res.Timestamp,
		OrderID:        order.ID,
	}
	if err := e.ledger.RecordSell(ctx, trade, closed); err != nil {
		e.l.Error("record sell fill",
			applogger.String("ticker", sig.Ticker),
			applogger.String("order_id", order.ID),
			applogger.Error(err))
		return res, fmt.Errorf("record sell %s: %w", sig.Ticker, err)
	}
	e.l.Info("position closed",
		applogger.String("ticker", sig.Ticker),
		applogger.String("order_id", order.ID),
		applogger.Int64("qty", res.Quantity),
		applogger.Stringer("price", res.Price),
		applogger.Stringer("pnl", res.Pnl),
		applogger.String("reason", sig.Reason))
	return res, nil
}

// submit places the order, retrying submission failures with exponential backoff.
func (e *OrderExecutor) submit(ctx context.Context, req models.OrderRequest) (*models.Order, error) {
	var order *models.Order
	err := e.retrier.WithSleeper(e.sleep).Do(ctx, func(attempt int) error {
		o, err := e.broker.SubmitOrder(ctx, req)
		if err != nil {
			e.l.Warn("order submission failed",
				applogger.String("ticker", req.Ticker),
				applogger.String("side", string(req.Side)),
				applogger.Int("attempt", attempt+1),
				applogger.Error(err))
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("submit %s %s: %w", req.Side, req.Ticker, err)
	}
	return order, nil
}

// waitForFill polls the order until it is filled, reaches a terminal
// non-fill status, or the fill timeout passes. Status lookups that fail are
// retried on the next tick.
func (e *OrderExecutor) waitForFill(ctx context.Context, order *models.Order) *models.Order {
	if order.Status == models.OrderFilled || order.Status.Terminal() {
		return order
	}
	deadline := e.now().Add(e.cfg.FillTimeout)
	for {
		if err := e.sleep(ctx, e.cfg.PollInterval); err != nil {
			return &models.Order{ID: order.ID, Ticker: order.Ticker, Status: models.OrderTimeout}
		}
		cur, err := e.broker.GetOrder(ctx, order.ID)
		if err != nil {
			e.l.Warn("order status lookup failed", applogger.String("order_id", order.ID), applogger.Error(err))
		} else if cur.Status == models.OrderFilled || cur.Status.Terminal() {
			return cur
		}
		if !e.now().Before(deadline) {
			return &models.Order{ID: order.ID, Ticker: order.Ticker, Status: models.OrderTimeout}
		}
	}
}
