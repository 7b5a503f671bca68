package repository

import (
	"context"
	"fmt"

	"SentiTrader/internal/domain/models"
	domrepo "SentiTrader/internal/domain/repository"
	pkgch "SentiTrader/pkg/clickhouse"
)

var _ domrepo.MarketData = (*ClickHouseMarketData)(nil)

// MarketBarsSchema creates the one-minute bar table filled by the market data collectors.
var MarketBarsSchema = []string{
	`CREATE TABLE IF NOT EXISTS market_bars (
		ticker LowCardinality(String),
		ts     DateTime64(3, 'UTC'),
		open   Float64,
		high   Float64,
		low    Float64,
		close  Float64,
		volume Float64
	) ENGINE = ReplacingMergeTree
	ORDER BY (ticker, ts)`,
}

// ClickHouseMarketData reads the latest bars for a ticker.
type ClickHouseMarketData struct {
	ch *pkgch.Client
}

func NewClickHouseMarketData(ch *pkgch.Client) *ClickHouseMarketData {
	return &ClickHouseMarketData{ch: ch}
}

func (m *ClickHouseMarketData) Init(ctx context.Context) error {
	return m.ch.InitSchema(ctx, MarketBarsSchema)
}

func (m *ClickHouseMarketData) Snapshot(ctx context.Context, ticker string, bars int) (*models.MarketSnapshot, error) {
	const q = `SELECT ts, close, volume FROM market_bars WHERE ticker = ? ORDER BY ts DESC LIMIT ?`
	rows, err := m.ch.DB().QueryContext(ctx, q, ticker, bars)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	desc := make([]models.Bar, 0, bars)
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Time, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		desc = append(desc, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	asc := make([]models.Bar, len(desc))
	for i, b := range desc {
		asc[len(desc)-1-i] = b
	}
	return models.SnapshotFromBars(ticker, asc)
}
