package models

import (
	"github.com/shopspring/decimal"
)

// LedgerSummary is the raw aggregate read from the position and trade tables.
type LedgerSummary struct {
	PositionCount int
	MarketValue   decimal.Decimal
	UnrealizedPnl decimal.Decimal
	RealizedPnl   decimal.Decimal
	DailyPnl      decimal.Decimal
}

// PortfolioState is derived fresh on every risk check and never stored.
type PortfolioState struct {
	PositionCount   int             `json:"position_count"`
	Cash            decimal.Decimal `json:"cash"`
	TotalValue      decimal.Decimal `json:"total_value"`
	UnrealizedPnl   decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnl     decimal.Decimal `json:"realized_pnl"`
	DailyPnl        decimal.Decimal `json:"daily_pnl"`
	DailyPnlPct     float64         `json:"daily_pnl_pct"`
	StartingCapital decimal.Decimal `json:"starting_capital"`
}

// NewPortfolioState derives cash, total value and daily P&L percentage from a ledger summary.
func NewPortfolioState(startingCapital decimal.Decimal, s LedgerSummary) PortfolioState {
	st := PortfolioState{
		PositionCount:   s.PositionCount,
		Cash:            startingCapital.Sub(s.MarketValue).Add(s.RealizedPnl),
		TotalValue:      startingCapital.Add(s.UnrealizedPnl).Add(s.RealizedPnl),
		UnrealizedPnl:   s.UnrealizedPnl,
		RealizedPnl:     s.RealizedPnl,
		DailyPnl:        s.DailyPnl,
		StartingCapital: startingCapital,
	}
	if startingCapital.IsPositive() {
		st.DailyPnlPct = s.DailyPnl.Div(startingCapital).InexactFloat64()
	}
	return st
}
