package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"SentiTrader/internal/domain/models"
	drepo "SentiTrader/internal/domain/repository"
	applogger "SentiTrader/pkg/logger"
)

// StateProvider derives the current portfolio state.
type StateProvider interface {
	State(ctx context.Context) (models.PortfolioState, error)
}

// RiskManager validates signals against portfolio guardrails. The only state it
// owns is the kill switch, which stays tripped until Reset.
type RiskManager struct {
	limits    models.RiskLimits
	positions drepo.PositionReader
	sectors   drepo.SectorReference
	metrics   drepo.Metrics
	l         *applogger.Logger

	mu     sync.Mutex
	halted bool
}

func NewRiskManager(limits models.RiskLimits, positions drepo.PositionReader, sectors drepo.SectorReference, metrics drepo.Metrics, l *applogger.Logger) *RiskManager {
	if l == nil {
		l = applogger.NewNop()
	}
	return &RiskManager{
		limits:    limits,
		positions: positions,
		sectors:   sectors,
		metrics:   metrics,
		l:         l.With(applogger.String("component", "risk_manager")),
	}
}

// Check derives the portfolio state and validates sig against it. A state
// read failure rejects the signal.
func (r *RiskManager) Check(ctx context.Context, sig *models.Signal, portfolio StateProvider) (models.Decision, models.PortfolioState) {
	state, err := portfolio.State(ctx)
	if err != nil {
		d := models.Reject("portfolio state unavailable: " + err.Error())
		r.record(sig, d)
		return d, state
	}
	return r.Validate(ctx, sig, state), state
}

// Validate returns the verdict for sig given state.
func (r *RiskManager) Validate(ctx context.Context, sig *models.Signal, state models.PortfolioState) models.Decision {
	var d models.Decision
	switch sig.Action {
	case models.ActionBuy:
		d = r.validateBuy(ctx, sig, state)
	case models.ActionSell:
		d = r.validateSell(ctx, sig)
	default:
		d = models.Reject(fmt.Sprintf("unknown action: %s", sig.Action))
	}
	r.record(sig, d)
	return d
}

func (r *RiskManager) record(sig *models.Signal, d models.Decision) {
	if r.metrics != nil {
		r.metrics.RecordDecision(sig.Action, d.Accepted)
	}
	if !d.Accepted {
		r.l.Info("signal rejected",
			applogger.String("ticker", sig.Ticker),
			applogger.String("action", string(sig.Action)),
			applogger.String("reason", d.Reason))
	}
}

// SELL ignores every limit: exiting an existing position is always allowed.
func (r *RiskManager) validateSell(ctx context.Context, sig *models.Signal) models.Decision {
	_, err := r.positions.Position(ctx, sig.Ticker)
	if errors.Is(err, models.ErrPositionNotFound) {
		return models.Reject("not in position")
	}
	if err != nil {
		return models.Reject("portfolio state unavailable: " + err.Error())
	}
	return models.Accept()
}

func (r *RiskManager) validateBuy(ctx context.Context, sig *models.Signal, state models.PortfolioState) models.Decision {
	if r.tripKillSwitch(state) {
		return models.Reject("trading halted - daily loss limit exceeded")
	}

	if !r.limits.AllowPyramiding {
		_, err := r.positions.Position(ctx, sig.Ticker)
		switch {
		case err == nil:
			return models.Reject("already in position")
		case !errors.Is(err, models.ErrPositionNotFound):
			return models.Reject("portfolio state unavailable: " + err.Error())
		}
	}

	if state.PositionCount >= r.limits.MaxPositions {
		return models.Reject(fmt.Sprintf("max positions reached (%d)", r.limits.MaxPositions))
	}

	target := r.limits.TargetNotional()
	if target.GreaterThan(state.Cash) {
		return models.Reject(fmt.Sprintf("insufficient cash (need $%s, have $%s)",
			target.StringFixed(2), state.Cash.StringFixed(2)))
	}

	if state.DailyPnlPct <= -r.limits.MaxDailyLossPct {
		return models.Reject(fmt.Sprintf("daily loss limit hit (%.2f%%)", state.DailyPnlPct*100))
	}

	sector, err := r.sectors.Sector(ctx, sig.Ticker)
	if err != nil {
		return models.Reject("portfolio state unavailable: " + err.Error())
	}
	if sector == "" {
		return models.Accept()
	}
	exposure, err := r.positions.SectorExposure(ctx, sector)
	if err != nil {
		return models.Reject("portfolio state unavailable: " + err.Error())
	}
	limit := state.TotalValue.Mul(decimal.NewFromFloat(r.limits.MaxSectorExposurePct))
	if exposure.Add(target).GreaterThan(limit) {
		return models.Reject(fmt.Sprintf("max sector exposure would be exceeded (%s: $%s + $%s > $%s)",
			sector, exposure.StringFixed(2), target.StringFixed(2), limit.StringFixed(2)))
	}
	return models.Accept()
}

// tripKillSwitch reports whether BUYs are halted, tripping the switch when the
// daily loss crosses the threshold. The trip is logged once.
func (r *RiskManager) tripKillSwitch(state models.PortfolioState) bool {
	if !r.limits.KillSwitchEnabled {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.halted && state.DailyPnlPct <= -r.limits.KillSwitchThresholdPct {
		r.halted = true
		r.l.Error("kill switch tripped",
			applogger.Float64("daily_pnl_pct", state.DailyPnlPct),
			applogger.Float64("threshold_pct", r.limits.KillSwitchThresholdPct))
		if r.metrics != nil {
			r.metrics.SetKillSwitch(true)
		}
	}
	return r.halted
}

// Halted reports whether the kill switch is tripped.
func (r *RiskManager) Halted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.halted
}

// Reset clears the kill switch, normally at the start of a trading day.
func (r *RiskManager) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.halted {
		return
	}
	r.halted = false
	r.l.Info("kill switch reset")
	if r.metrics != nil {
		r.metrics.SetKillSwitch(false)
	}
}

func (r *RiskManager) Limits() models.RiskLimits { return r.limits }

// SizePosition converts an accepted BUY into a share count:
// floor(min(target notional, cash) / price), at least one share.
func (r *RiskManager) SizePosition(state models.PortfolioState, price decimal.Decimal) int64 {
	if !price.IsPositive() {
		return 0
	}
	notional := decimal.Min(r.limits.TargetNotional(), state.Cash)
	qty := notional.Div(price).Floor().IntPart()
	if qty < 1 {
		qty = 1
	}
	return qty
}
