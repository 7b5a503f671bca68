package worker

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"SentiTrader/internal/domain/models"
	drepo "SentiTrader/internal/domain/repository"
	"SentiTrader/internal/usecase"
	pkgkafka "SentiTrader/pkg/kafka"
	applogger "SentiTrader/pkg/logger"
)

// RiskGate is the part of usecase.RiskManager the executor stage uses.
type RiskGate interface {
	Check(ctx context.Context, sig *models.Signal, portfolio usecase.StateProvider) (models.Decision, models.PortfolioState)
	SizePosition(state models.PortfolioState, price decimal.Decimal) int64
	Reset()
}

// Executor places orders for accepted signals.
type Executor interface {
	Execute(ctx context.Context, sig *models.Signal, qty int64) (*models.ExecutionResult, error)
}

// TradingCalendar names the trading day an instant belongs to.
type TradingCalendar interface {
	TradingDay(at time.Time) string
}

// SignalHandler consumes the signals stream: risk check, sizing, execution.
// Malformed signals are permanent failures and go to the dead-letter topic.
// Every other outcome is final and returns nil so a message is never
// redelivered into a second order.
type SignalHandler struct {
	topic     string
	risk      RiskGate
	portfolio usecase.StateProvider
	exec      Executor
	calendar  TradingCalendar
	metrics   drepo.Metrics
	l         *applogger.Logger
	now       func() time.Time

	mu      sync.Mutex
	lastDay string
}

func NewSignalHandler(topic string, risk RiskGate, portfolio usecase.StateProvider, exec Executor, calendar TradingCalendar, metrics drepo.Metrics, l *applogger.Logger) *SignalHandler {
	if l == nil {
		l = applogger.NewNop()
	}
	return &SignalHandler{
		topic:     topic,
		risk:      risk,
		portfolio: portfolio,
		exec:      exec,
		calendar:  calendar,
		metrics:   metrics,
		l:         l.With(applogger.String("component", "signal_handler")),
		now:       time.Now,
	}
}

func (h *SignalHandler) Topic() string { return h.topic }

func (h *SignalHandler) Handle(ctx context.Context, b []byte) error {
	sig, err := models.DecodeSignal(b)
	if err != nil {
		h.recordError("signal_decode")
		return pkgkafka.Permanent(err)
	}
	h.rollDay()

	d, state := h.risk.Check(ctx, sig, h.portfolio)
	if !d.Accepted {
		return nil
	}

	var qty int64
	if sig.Action == models.ActionBuy {
		if sig.Metadata.Price == nil || !sig.Metadata.Price.IsPositive() {
			h.l.Warn("buy signal without price, skipping", applogger.String("ticker", sig.Ticker))
			return nil
		}
		qty = h.risk.SizePosition(state, *sig.Metadata.Price)
		if qty < 1 {
			return nil
		}
	}

	// an order in flight is allowed to finish even if the process is stopping
	res, err := h.exec.Execute(context.WithoutCancel(ctx), sig, qty)
	if err != nil {
		h.l.Error("execution failed",
			applogger.String("ticker", sig.Ticker),
			applogger.String("action", string(sig.Action)),
			applogger.Error(err))
		h.recordError("execute")
		return nil
	}
	h.l.Info("signal executed",
		applogger.String("ticker", res.Ticker),
		applogger.String("action", string(res.Action)),
		applogger.String("order_id", res.OrderID),
		applogger.String("status", string(res.Status)),
		applogger.Bool("filled", res.Filled),
		applogger.Int64("qty", res.Quantity))
	return nil
}

// rollDay resets the kill switch the first time a new trading day is seen.
func (h *SignalHandler) rollDay() {
	if h.calendar == nil {
		return
	}
	day := h.calendar.TradingDay(h.now())
	h.mu.Lock()
	changed := h.lastDay != "" && h.lastDay != day
	h.lastDay = day
	h.mu.Unlock()
	if changed {
		h.risk.Reset()
	}
}

func (h *SignalHandler) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}

var _ pkgkafka.MessageHandler = (*SignalHandler)(nil)
