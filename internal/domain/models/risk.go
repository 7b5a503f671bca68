package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskLimits are the static guardrails applied to every signal.
type RiskLimits struct {
	StartingCapital        decimal.Decimal `json:"starting_capital"`
	MaxPositions           int             `json:"max_positions"`
	PositionSizePct        float64         `json:"position_size_pct"`
	MaxDailyLossPct        float64         `json:"max_daily_loss_pct"`
	MaxSectorExposurePct   float64         `json:"max_sector_exposure_pct"`
	MaxTradeLossPct        float64         `json:"max_trade_loss_pct"`
	KillSwitchEnabled      bool            `json:"kill_switch_enabled"`
	KillSwitchThresholdPct float64         `json:"kill_switch_threshold_pct"`
	AllowPyramiding        bool            `json:"allow_pyramiding"`
}

// TargetNotional is startingCapital * positionSizePct.
func (l RiskLimits) TargetNotional() decimal.Decimal {
	return l.StartingCapital.Mul(decimal.NewFromFloat(l.PositionSizePct))
}

// Decision is the risk manager verdict for one signal.
type Decision struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason"`
}

func Accept() Decision { return Decision{Accepted: true, Reason: "ok"} }

func Reject(reason string) Decision { return Decision{Reason: reason} }

// ExecutionResult reports the outcome of one executed (or attempted) order.
type ExecutionResult struct {
	OrderID   string          `json:"order_id"`
	Ticker    string          `json:"ticker"`
	Action    Action          `json:"action"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Pnl       decimal.Decimal `json:"pnl"`
	Status    OrderStatus     `json:"status"`
	Filled    bool            `json:"filled"`
	Timestamp time.Time       `json:"timestamp"`
}
