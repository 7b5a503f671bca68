package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"SentiTrader/internal/domain/models"
)

// AggregateStore is durable storage for aggregate records.
type AggregateStore interface {
	Init(ctx context.Context) error
	StoreBatch(ctx context.Context, records []models.AggregateRecord) error
	// Latest returns the newest record for ticker and window, or models.ErrNoAggregate.
	Latest(ctx context.Context, ticker, window string) (*models.AggregateRecord, error)
	// LatestAny returns the newest record for ticker regardless of window.
	LatestAny(ctx context.Context, ticker string) (*models.AggregateRecord, error)
	Health(ctx context.Context) error
	Close() error
}

// AggregateCache is the short-TTL aggregate cache keyed by ticker and window.
type AggregateCache interface {
	SetBatch(ctx context.Context, records []models.AggregateRecord, ttl time.Duration) error
	Get(ctx context.Context, ticker, window string) (*models.AggregateRecord, error)
}

// AggregatePublisher emits aggregates onto the aggregates stream.
type AggregatePublisher interface {
	PublishAggregates(ctx context.Context, records []models.AggregateRecord) error
}

// SignalPublisher emits signals onto the signals stream.
type SignalPublisher interface {
	PublishSignal(ctx context.Context, s *models.Signal) error
}

// AggregateReader is what the signal generator needs to read sentiment.
type AggregateReader interface {
	Latest(ctx context.Context, ticker, window string) (*models.AggregateRecord, error)
	LatestAny(ctx context.Context, ticker string) (*models.AggregateRecord, error)
}

// MarketData provides the latest bar snapshot for a ticker, or models.ErrNoMarketData.
type MarketData interface {
	Snapshot(ctx context.Context, ticker string, bars int) (*models.MarketSnapshot, error)
}

// PositionReader is the read side of the ledger.
type PositionReader interface {
	// Position returns the open position or models.ErrPositionNotFound.
	Position(ctx context.Context, ticker string) (*models.Position, error)
	Positions(ctx context.Context) ([]models.Position, error)
	Summary(ctx context.Context, dayStart time.Time) (models.LedgerSummary, error)
	// SectorExposure sums market value of open positions in sector.
	SectorExposure(ctx context.Context, sector string) (decimal.Decimal, error)
}

// Ledger owns positions, trades and closed positions.
type Ledger interface {
	PositionReader
	// RecordBuy appends the trade and upserts the position in one transaction.
	RecordBuy(ctx context.Context, t models.Trade) (*models.Position, error)
	// RecordSell appends the trade, writes closed history and deletes the position in one transaction.
	RecordSell(ctx context.Context, t models.Trade, closed models.ClosedPosition) error
	// ReplacePositions overwrites the whole position set.
	ReplacePositions(ctx context.Context, positions []models.Position) error
	UpdatePrices(ctx context.Context, prices map[string]models.BrokerPosition, at time.Time) error
	Trades(ctx context.Context, from, to time.Time, limit int) ([]models.Trade, error)
	Init(ctx context.Context) error
	Health(ctx context.Context) error
	Close() error
}

// SectorReference maps a ticker to its sector. Unknown tickers yield "".
type SectorReference interface {
	Sector(ctx context.Context, ticker string) (string, error)
}

// Brokerage is the external execution API.
type Brokerage interface {
	SubmitOrder(ctx context.Context, req models.OrderRequest) (*models.Order, error)
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	Position(ctx context.Context, ticker string) (*models.BrokerPosition, error)
	Positions(ctx context.Context) ([]models.BrokerPosition, error)
	Account(ctx context.Context) (*models.Account, error)
	IsMarketOpen(ctx context.Context) (bool, error)
}

// Metrics records pipeline counters.
type Metrics interface {
	RecordDatapoints(n int)
	RecordAggregates(window string, n int)
	RecordSignal(action models.Action)
	RecordDecision(action models.Action, accepted bool)
	RecordOrder(action models.Action, status string)
	RecordOrderLatency(seconds float64)
	SetKillSwitch(halted bool)
	RecordError(kind string)
}
