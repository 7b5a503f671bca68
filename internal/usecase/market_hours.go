package usecase

import (
	"context"
	"fmt"
	"time"

	drepo "SentiTrader/internal/domain/repository"
)

// MarketClock answers whether trading is allowed at a point in time.
type MarketClock interface {
	IsOpen(ctx context.Context, at time.Time) (bool, error)
}

// MarketHours is a weekday session schedule in the exchange timezone. When a
// brokerage is attached its clock has the final say, which covers holidays.
type MarketHours struct {
	loc    *time.Location
	open   time.Duration
	close  time.Duration
	broker drepo.Brokerage
}

// NewMarketHours builds a schedule. open and close are offsets from local midnight.
func NewMarketHours(timezone string, open, close time.Duration, broker drepo.Brokerage) (*MarketHours, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	if open >= close {
		return nil, fmt.Errorf("session open %s must be before close %s", open, close)
	}
	return &MarketHours{loc: loc, open: open, close: close, broker: broker}, nil
}

// IsOpen reports whether at falls inside [open, close) on a weekday.
func (m *MarketHours) IsOpen(ctx context.Context, at time.Time) (bool, error) {
	if !m.inSession(at) {
		return false, nil
	}
	if m.broker == nil {
		return true, nil
	}
	return m.broker.IsMarketOpen(ctx)
}

func (m *MarketHours) inSession(at time.Time) bool {
	local := at.In(m.loc)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	offset := local.Sub(m.DayStart(at))
	return offset >= m.open && offset < m.close
}

// DayStart is local midnight of the trading day containing at.
func (m *MarketHours) DayStart(at time.Time) time.Time {
	local := at.In(m.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, m.loc)
}

// TradingDay is the calendar date of at in the exchange timezone.
func (m *MarketHours) TradingDay(at time.Time) string {
	return at.In(m.loc).Format("2006-01-02")
}

func (m *MarketHours) Location() *time.Location { return m.loc }
