package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"SentiTrader/internal/domain/models"
	domrepo "SentiTrader/internal/domain/repository"
	pkgpg "SentiTrader/pkg/postgres"
)

var (
	_ domrepo.Ledger          = (*PostgresLedger)(nil)
	_ domrepo.SectorReference = (*PostgresLedger)(nil)
)

// LedgerSchema creates the position, trade, closed position and ticker reference tables.
var LedgerSchema = []string{
	`CREATE TABLE IF NOT EXISTS positions (
		ticker          TEXT PRIMARY KEY,
		quantity        BIGINT NOT NULL CHECK (quantity > 0),
		avg_entry_price NUMERIC(18,6) NOT NULL,
		current_price   NUMERIC(18,6) NOT NULL DEFAULT 0,
		unrealized_pnl  NUMERIC(18,6) NOT NULL DEFAULT 0,
		realized_pnl    NUMERIC(18,6) NOT NULL DEFAULT 0,
		entry_timestamp TIMESTAMPTZ NOT NULL,
		last_updated    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS trades (
		id              UUID PRIMARY KEY,
		timestamp       TIMESTAMPTZ NOT NULL,
		ticker          TEXT NOT NULL,
		action          TEXT NOT NULL CHECK (action IN ('BUY', 'SELL')),
		quantity        BIGINT NOT NULL,
		price           NUMERIC(18,6) NOT NULL,
		total_value     NUMERIC(18,6) NOT NULL,
		order_id        TEXT NOT NULL,
		signal_reason   TEXT NOT NULL DEFAULT '',
		sentiment_score DOUBLE PRECISION NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS trades_timestamp_idx ON trades (timestamp)`,
	`CREATE TABLE IF NOT EXISTS closed_positions (
		id              BIGSERIAL PRIMARY KEY,
		ticker          TEXT NOT NULL,
		quantity        BIGINT NOT NULL,
		avg_entry_price NUMERIC(18,6) NOT NULL,
		exit_price      NUMERIC(18,6) NOT NULL,
		realized_pnl    NUMERIC(18,6) NOT NULL,
		entry_timestamp TIMESTAMPTZ NOT NULL,
		closed_at       TIMESTAMPTZ NOT NULL,
		order_id        TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tickers (
		symbol TEXT PRIMARY KEY,
		sector TEXT NOT NULL
	)`,
}

const (
	positionCols = `ticker, quantity, avg_entry_price, current_price, unrealized_pnl, realized_pnl, entry_timestamp, last_updated`

	insertTradeSQL = `INSERT INTO trades
		(id, timestamp, ticker, action, quantity, price, total_value, order_id, signal_reason, sentiment_score)
		VALUES (:id, :timestamp, :ticker, :action, :quantity, :price, :total_value, :order_id, :signal_reason, :sentiment_score)`

	upsertPositionSQL = `INSERT INTO positions (` + positionCols + `)
		VALUES (:ticker, :quantity, :avg_entry_price, :current_price, :unrealized_pnl, :realized_pnl, :entry_timestamp, :last_updated)
		ON CONFLICT (ticker) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			avg_entry_price = EXCLUDED.avg_entry_price,
			current_price = EXCLUDED.current_price,
			unrealized_pnl = EXCLUDED.unrealized_pnl,
			last_updated = EXCLUDED.last_updated`

	insertClosedSQL = `INSERT INTO closed_positions
		(ticker, quantity, avg_entry_price, exit_price, realized_pnl, entry_timestamp, closed_at, order_id)
		VALUES (:ticker, :quantity, :avg_entry_price, :exit_price, :realized_pnl, :entry_timestamp, :closed_at, :order_id)`

	// market value falls back to entry price until the first price refresh
	marketValueExpr = `quantity * CASE WHEN current_price > 0 THEN current_price ELSE avg_entry_price END`
)

// PostgresLedger is the transactional store for positions and trades. It is
// the only writer of the positions table.
type PostgresLedger struct {
	pg *pkgpg.Client
	db *sqlx.DB
}

func NewPostgresLedger(pg *pkgpg.Client) *PostgresLedger {
	return &PostgresLedger{pg: pg, db: pg.DB()}
}

func (l *PostgresLedger) Init(ctx context.Context) error {
	return l.pg.InitSchema(ctx, LedgerSchema)
}

func (l *PostgresLedger) Health(ctx context.Context) error { return l.pg.Health(ctx) }

// Close is a no-op; the pool is owned by the client.
func (l *PostgresLedger) Close() error { return nil }

func (l *PostgresLedger) Position(ctx context.Context, ticker string) (*models.Position, error) {
	var p models.Position
	err := l.db.GetContext(ctx, &p, `SELECT `+positionCols+` FROM positions WHERE ticker = $1`, ticker)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPositionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get position %s: %w", ticker, err)
	}
	return &p, nil
}

func (l *PostgresLedger) Positions(ctx context.Context) ([]models.Position, error) {
	var out []models.Position
	if err := l.db.SelectContext(ctx, &out, `SELECT `+positionCols+` FROM positions ORDER BY ticker`); err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	return out, nil
}

type summaryRow struct {
	PositionCount int             `db:"position_count"`
	MarketValue   decimal.Decimal `db:"market_value"`
	UnrealizedPnl decimal.Decimal `db:"unrealized_pnl"`
	RealizedPnl   decimal.Decimal `db:"realized_pnl"`
	DailyPnl      decimal.Decimal `db:"daily_pnl"`
}

// Summary aggregates the ledger in one round trip. Daily P&L is the signed
// notional of trades at or after dayStart.
func (l *PostgresLedger) Summary(ctx context.Context, dayStart time.Time) (models.LedgerSummary, error) {
	const q = `SELECT
		(SELECT COUNT(*) FROM positions) AS position_count,
		(SELECT COALESCE(SUM(` + marketValueExpr + `), 0) FROM positions) AS market_value,
		(SELECT COALESCE(SUM(unrealized_pnl), 0) FROM positions) AS unrealized_pnl,
		(SELECT COALESCE(SUM(realized_pnl), 0) FROM closed_positions)
			+ (SELECT COALESCE(SUM(realized_pnl), 0) FROM positions) AS realized_pnl,
		(SELECT COALESCE(SUM(CASE WHEN action = 'SELL' THEN total_value ELSE -total_value END), 0)
			FROM trades WHERE timestamp >= $1) AS daily_pnl`

	var row summaryRow
	if err := l.db.GetContext(ctx, &row, q, dayStart); err != nil {
		return models.LedgerSummary{}, fmt.Errorf("ledger summary: %w", err)
	}
	return models.LedgerSummary{
		PositionCount: row.PositionCount,
		MarketValue:   row.MarketValue,
		UnrealizedPnl: row.UnrealizedPnl,
		RealizedPnl:   row.RealizedPnl,
		DailyPnl:      row.DailyPnl,
	}, nil
}

func (l *PostgresLedger) SectorExposure(ctx context.Context, sector string) (decimal.Decimal, error) {
	const q = `SELECT COALESCE(SUM(p.` + marketValueExpr + `), 0)
		FROM positions p JOIN tickers t ON t.symbol = p.ticker
		WHERE t.sector = $1`
	var v decimal.Decimal
	if err := l.db.GetContext(ctx, &v, q, sector); err != nil {
		return decimal.Zero, fmt.Errorf("sector exposure %s: %w", sector, err)
	}
	return v, nil
}

// Sector returns the ticker's sector, or "" when the ticker is not in the reference table.
func (l *PostgresLedger) Sector(ctx context.Context, ticker string) (string, error) {
	var s string
	err := l.db.GetContext(ctx, &s, `SELECT sector FROM tickers WHERE symbol = $1`, ticker)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("sector %s: %w", ticker, err)
	}
	return s, nil
}

// RecordBuy appends the trade and applies the weighted-average update under a row lock.
func (l *PostgresLedger) RecordBuy(ctx context.Context, t models.Trade) (*models.Position, error) {
	var updated models.Position
	err := l.pg.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, insertTradeSQL, t); err != nil {
			return fmt.Errorf("insert trade: %w", err)
		}

		var existing *models.Position
		var cur models.Position
		err := tx.GetContext(ctx, &cur, `SELECT `+positionCols+` FROM positions WHERE ticker = $1 FOR UPDATE`, t.Ticker)
		switch {
		case err == nil:
			existing = &cur
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("lock position: %w", err)
		}

		updated = models.ApplyBuyFill(existing, t.Ticker, t.Quantity, t.Price, t.Timestamp)
		if _, err := tx.NamedExecContext(ctx, upsertPositionSQL, updated); err != nil {
			return fmt.Errorf("upsert position: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// RecordSell appends the trade, archives the closed position and removes it.
func (l *PostgresLedger) RecordSell(ctx context.Context, t models.Trade, closed models.ClosedPosition) error {
	return l.pg.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, insertTradeSQL, t); err != nil {
			return fmt.Errorf("insert trade: %w", err)
		}
		if _, err := tx.NamedExecContext(ctx, insertClosedSQL, closed); err != nil {
			return fmt.Errorf("insert closed position: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM positions WHERE ticker = $1`, t.Ticker); err != nil {
			return fmt.Errorf("delete position: %w", err)
		}
		return nil
	})
}

// ReplacePositions overwrites the whole position set in one transaction.
func (l *PostgresLedger) ReplacePositions(ctx context.Context, positions []models.Position) error {
	return l.pg.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM positions`); err != nil {
			return fmt.Errorf("clear positions: %w", err)
		}
		for _, p := range positions {
			if _, err := tx.NamedExecContext(ctx, upsertPositionSQL, p); err != nil {
				return fmt.Errorf("insert position %s: %w", p.Ticker, err)
			}
		}
		return nil
	})
}

// UpdatePrices refreshes price and unrealized P&L only. Tickers without a local row are ignored.
func (l *PostgresLedger) UpdatePrices(ctx context.Context, prices map[string]models.BrokerPosition, at time.Time) error {
	if len(prices) == 0 {
		return nil
	}
	return l.pg.WithTx(ctx, func(tx *sqlx.Tx) error {
		for ticker, bp := range prices {
			if _, err := tx.ExecContext(ctx,
				`UPDATE positions SET current_price = $2, unrealized_pnl = $3, last_updated = $4 WHERE ticker = $1`,
				ticker, bp.CurrentPrice, bp.UnrealizedPnl, at,
			); err != nil {
				return fmt.Errorf("update price %s: %w", ticker, err)
			}
		}
		return nil
	})
}

func (l *PostgresLedger) Trades(ctx context.Context, from, to time.Time, limit int) ([]models.Trade, error) {
	const q = `SELECT id, timestamp, ticker, action, quantity, price, total_value, order_id, signal_reason, sentiment_score
		FROM trades WHERE timestamp >= $1 AND timestamp <= $2 ORDER BY timestamp DESC LIMIT $3`
	var out []models.Trade
	if err := l.db.SelectContext(ctx, &out, q, from, to, limit); err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	return out, nil
}

// UpsertSector writes the ticker reference row.
func (l *PostgresLedger) UpsertSector(ctx context.Context, ticker, sector string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO tickers (symbol, sector) VALUES ($1, $2) ON CONFLICT (symbol) DO UPDATE SET sector = EXCLUDED.sector`,
		ticker, sector)
	return err
}
