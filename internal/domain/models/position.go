package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Position is an open holding. At most one exists per ticker.
type Position struct {
	Ticker         string          `db:"ticker" json:"ticker"`
	Quantity       int64           `db:"quantity" json:"quantity"`
	AvgEntryPrice  decimal.Decimal `db:"avg_entry_price" json:"avg_entry_price"`
	CurrentPrice   decimal.Decimal `db:"current_price" json:"current_price"`
	UnrealizedPnl  decimal.Decimal `db:"unrealized_pnl" json:"unrealized_pnl"`
	RealizedPnl    decimal.Decimal `db:"realized_pnl" json:"realized_pnl"`
	EntryTimestamp time.Time       `db:"entry_timestamp" json:"entry_timestamp"`
	LastUpdated    time.Time       `db:"last_updated" json:"last_updated"`
}

// MarketValue is quantity times the last known price, falling back to entry price.
func (p Position) MarketValue() decimal.Decimal {
	price := p.CurrentPrice
	if price.IsZero() {
		price = p.AvgEntryPrice
	}
	return price.Mul(decimal.NewFromInt(p.Quantity))
}

// ReturnPct is the fractional return of price against the average entry price.
func (p Position) ReturnPct(price decimal.Decimal) float64 {
	if p.AvgEntryPrice.IsZero() {
		return 0
	}
	return price.Sub(p.AvgEntryPrice).Div(p.AvgEntryPrice).InexactFloat64()
}

// WeightedAverage computes (oldQty*oldAvg + addQty*price) / (oldQty+addQty).
func WeightedAverage(oldQty int64, oldAvg decimal.Decimal, addQty int64, price decimal.Decimal) decimal.Decimal {
	total := oldQty + addQty
	if total <= 0 {
		return decimal.Zero
	}
	num := oldAvg.Mul(decimal.NewFromInt(oldQty)).Add(price.Mul(decimal.NewFromInt(addQty)))
	return num.Div(decimal.NewFromInt(total))
}

// ApplyBuyFill returns the position after a filled BUY. existing may be nil.
func ApplyBuyFill(existing *Position, ticker string, qty int64, price decimal.Decimal, at time.Time) Position {
	if existing == nil || existing.Quantity <= 0 {
		return Position{
			Ticker:         ticker,
			Quantity:       qty,
			AvgEntryPrice:  price,
			CurrentPrice:   price,
			UnrealizedPnl:  decimal.Zero,
			RealizedPnl:    decimal.Zero,
			EntryTimestamp: at,
			LastUpdated:    at,
		}
	}
	p := *existing
	p.AvgEntryPrice = WeightedAverage(existing.Quantity, existing.AvgEntryPrice, qty, price)
	p.Quantity = existing.Quantity + qty
	p.CurrentPrice = price
	p.UnrealizedPnl = price.Sub(p.AvgEntryPrice).Mul(decimal.NewFromInt(p.Quantity))
	p.LastUpdated = at
	return p
}

// Trade is an append-only ledger row.
type Trade struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	Timestamp      time.Time       `db:"timestamp" json:"timestamp"`
	Ticker         string          `db:"ticker" json:"ticker"`
	Action         Action          `db:"action" json:"action"`
	Quantity       int64           `db:"quantity" json:"quantity"`
	Price          decimal.Decimal `db:"price" json:"price"`
	TotalValue     decimal.Decimal `db:"total_value" json:"total_value"`
	OrderID        string          `db:"order_id" json:"order_id"`
	SignalReason   string          `db:"signal_reason" json:"signal_reason"`
	SentimentScore float64         `db:"sentiment_score" json:"sentiment_score"`
}

// NewTrade builds a trade row for a fill.
func NewTrade(sig *Signal, qty int64, price decimal.Decimal, orderID string, at time.Time) Trade {
	return Trade{
		ID:             uuid.New(),
		Timestamp:      at,
		Ticker:         sig.Ticker,
		Action:         sig.Action,
		Quantity:       qty,
		Price:          price,
		TotalValue:     price.Mul(decimal.NewFromInt(qty)),
		OrderID:        orderID,
		SignalReason:   sig.Reason,
		SentimentScore: sig.SentimentScore(),
	}
}

// SignedNotional is positive for sells and negative for buys.
func (t Trade) SignedNotional() decimal.Decimal {
	if t.Action == ActionSell {
		return t.TotalValue
	}
	return t.TotalValue.Neg()
}

// ClosedPosition is the history row written when a position is closed.
type ClosedPosition struct {
	Ticker         string          `db:"ticker" json:"ticker"`
	Quantity       int64           `db:"quantity" json:"quantity"`
	AvgEntryPrice  decimal.Decimal `db:"avg_entry_price" json:"avg_entry_price"`
	ExitPrice      decimal.Decimal `db:"exit_price" json:"exit_price"`
	RealizedPnl    decimal.Decimal `db:"realized_pnl" json:"realized_pnl"`
	EntryTimestamp time.Time       `db:"entry_timestamp" json:"entry_timestamp"`
	ClosedAt       time.Time       `db:"closed_at" json:"closed_at"`
	OrderID        string          `db:"order_id" json:"order_id"`
}

// MarketSnapshot is the latest bar plus the mean volume over the lookback.
type MarketSnapshot struct {
	Ticker    string    `json:"ticker"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	AvgVolume float64   `json:"avg_volume"`
	Time      time.Time `json:"time"`
	Bars      int       `json:"bars"`
}

// VolumeRatio is Volume over AvgVolume, 0 when there is no average.
func (m MarketSnapshot) VolumeRatio() float64 {
	if m.AvgVolume <= 0 {
		return 0
	}
	return m.Volume / m.AvgVolume
}

// Bar is one OHLCV candle; only close and volume feed the strategy.
type Bar struct {
	Time   time.Time
	Close  float64
	Volume float64
}

// SnapshotFromBars builds a snapshot from bars in chronological order. The
// average volume includes the latest bar.
func SnapshotFromBars(ticker string, bars []Bar) (*MarketSnapshot, error) {
	if len(bars) == 0 {
		return nil, ErrNoMarketData
	}
	var sum float64
	for _, b := range bars {
		sum += b.Volume
	}
	last := bars[len(bars)-1]
	return &MarketSnapshot{
		Ticker:    ticker,
		Close:     last.Close,
		Volume:    last.Volume,
		AvgVolume: sum / float64(len(bars)),
		Time:      last.Time,
		Bars:      len(bars),
	}, nil
}
