package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"SentiTrader/internal/domain/models"
	drepo "SentiTrader/internal/domain/repository"
	applogger "SentiTrader/pkg/logger"
)

// DayClock locates the start of the trading day.
type DayClock interface {
	DayStart(at time.Time) time.Time
}

// Portfolio is the read accessor over position state and reconciles it with
// the brokerage, which is authoritative.
type Portfolio struct {
	ledger drepo.Ledger
	broker drepo.Brokerage
	guard  *PositionGuard
	clock  DayClock
	start  decimal.Decimal
	l      *applogger.Logger
	now    func() time.Time
}

func NewPortfolio(ledger drepo.Ledger, broker drepo.Brokerage, guard *PositionGuard, clock DayClock, startingCapital decimal.Decimal, l *applogger.Logger) *Portfolio {
	if guard == nil {
		guard = NewPositionGuard()
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &Portfolio{
		ledger: ledger,
		broker: broker,
		guard:  guard,
		clock:  clock,
		start:  startingCapital,
		l:      l.With(applogger.String("component", "portfolio")),
		now:    time.Now,
	}
}

// State derives the portfolio state from the ledger for the current trading day.
func (p *Portfolio) State(ctx context.Context) (models.PortfolioState, error) {
	sum, err := p.ledger.Summary(ctx, p.clock.DayStart(p.now()))
	if err != nil {
		return models.PortfolioState{}, err
	}
	return models.NewPortfolioState(p.start, sum), nil
}

func (p *Portfolio) Positions(ctx context.Context) ([]models.Position, error) {
	return p.ledger.Positions(ctx)
}

func (p *Portfolio) Position(ctx context.Context, ticker string) (*models.Position, error) {
	return p.ledger.Position(ctx, ticker)
}

// Trades lists ledger trades in [from, to], newest first. A zero to means now
// and a zero from means the start of that trading day.
func (p *Portfolio) Trades(ctx context.Context, from, to time.Time, limit int) ([]models.Trade, error) {
	if to.IsZero() {
		to = p.now()
	}
	if from.IsZero() {
		from = p.clock.DayStart(to)
	}
	if from.After(to) {
		return nil, fmt.Errorf("%w: from must not be after to", models.ErrInvalidQuery)
	}
	return p.ledger.Trades(ctx, from, to, limit)
}

// SyncWithBrokerage replaces every local position with the brokerage view.
// Entry timestamps of tickers already held locally are kept; new tickers get
// the sync time.
func (p *Portfolio) SyncWithBrokerage(ctx context.Context) (int, error) {
	p.guard.Lock()
	defer p.guard.Unlock()

	remote, err := p.broker.Positions(ctx)
	if err != nil {
		return 0, fmt.Errorf("brokerage positions: %w", err)
	}
	local, err := p.ledger.Positions(ctx)
	if err != nil {
		return 0, fmt.Errorf("local positions: %w", err)
	}
	entries := make(map[string]time.Time, len(local))
	for _, lp := range local {
		entries[lp.Ticker] = lp.EntryTimestamp
	}

	now := p.now().UTC()
	positions := make([]models.Position, 0, len(remote))
	for _, bp := range remote {
		if bp.Quantity <= 0 {
			continue
		}
		entry, ok := entries[bp.Ticker]
		if !ok || entry.IsZero() {
			entry = now
		}
		positions = append(positions, models.Position{
			Ticker:         bp.Ticker,
			Quantity:       bp.Quantity,
			AvgEntryPrice:  bp.AvgEntryPrice,
			CurrentPrice:   bp.CurrentPrice,
			UnrealizedPnl:  bp.UnrealizedPnl,
			RealizedPnl:    decimal.Zero,
			EntryTimestamp: entry,
			LastUpdated:    now,
		})
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Ticker < positions[j].Ticker })

	if err := p.ledger.ReplacePositions(ctx, positions); err != nil {
		return 0, fmt.Errorf("replace positions: %w", err)
	}
	p.l.Info("synced positions with brokerage",
		applogger.Int("remote", len(positions)),
		applogger.Int("local_before", len(local)))
	return len(positions), nil
}

// UpdatePositionPrices refreshes price and unrealized P&L of open positions.
// Quantity and entry price are left alone.
func (p *Portfolio) UpdatePositionPrices(ctx context.Context) (int, error) {
	local, err := p.ledger.Positions(ctx)
	if err != nil {
		return 0, fmt.Errorf("local positions: %w", err)
	}
	if len(local) == 0 {
		return 0, nil
	}
	remote, err := p.broker.Positions(ctx)
	if err != nil {
		return 0, fmt.Errorf("brokerage positions: %w", err)
	}
	held := make(map[string]struct{}, len(local))
	for _, lp := range local {
		held[lp.Ticker] = struct{}{}
	}
	prices := make(map[string]models.BrokerPosition, len(local))
	for _, bp := range remote {
		if _, ok := held[bp.Ticker]; ok {
			prices[bp.Ticker] = bp
		}
	}
	if err := p.ledger.UpdatePrices(ctx, prices, p.now().UTC()); err != nil {
		return 0, err
	}
	return len(prices), nil
}

func (p *Portfolio) BuyingPower(ctx context.Context) (decimal.Decimal, error) {
	acct, err := p.broker.Account(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return acct.BuyingPower, nil
}

func (p *Portfolio) AccountValue(ctx context.Context) (decimal.Decimal, error) {
	acct, err := p.broker.Account(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return acct.Equity, nil
}

func (p *Portfolio) IsMarketOpen(ctx context.Context) (bool, error) {
	return p.broker.IsMarketOpen(ctx)
}
