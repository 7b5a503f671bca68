package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"SentiTrader/internal/domain/models"
	domrepo "SentiTrader/internal/domain/repository"
	pkgch "SentiTrader/pkg/clickhouse"
	applogger "SentiTrader/pkg/logger"
)

var _ domrepo.AggregateStore = (*ClickHouseAggregateStore)(nil)

// AggregateSchema creates the aggregate history table.
var AggregateSchema = []string{
	`CREATE TABLE IF NOT EXISTS aggregate_records (
		ticker             LowCardinality(String),
		window_size        LowCardinality(String),
		avg_sentiment      Float64,
		weighted_sentiment Float64,
		mention_count      UInt32,
		sentiment_std      Float64,
		sentiment_momentum Float64,
		as_of              DateTime64(3, 'UTC'),
		version            UInt8
	) ENGINE = ReplacingMergeTree
	ORDER BY (ticker, window_size, as_of)
	TTL toDateTime(as_of) + INTERVAL 90 DAY`,
}

const (
	insertAggregateSQL = `INSERT INTO aggregate_records
		(ticker, window_size, avg_sentiment, weighted_sentiment, mention_count, sentiment_std, sentiment_momentum, as_of, version)`

	selectAggregateCols = `SELECT ticker, window_size, avg_sentiment, weighted_sentiment, mention_count,
		sentiment_std, sentiment_momentum, as_of, version FROM aggregate_records`
)

// ClickHouseAggregateStore persists aggregate records.
type ClickHouseAggregateStore struct {
	ch *pkgch.Client
	l  *applogger.Logger
}

func NewClickHouseAggregateStore(ch *pkgch.Client, l *applogger.Logger) *ClickHouseAggregateStore {
	if l == nil {
		l = applogger.NewNop()
	}
	return &ClickHouseAggregateStore{ch: ch, l: l.With(applogger.String("component", "aggregate_store"))}
}

func (s *ClickHouseAggregateStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, AggregateSchema)
}

// StoreBatch writes all records of one cycle as a single insert block.
func (s *ClickHouseAggregateStore) StoreBatch(ctx context.Context, records []models.AggregateRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([][]interface{}, 0, len(records))
	for _, r := range records {
		rows = append(rows, []interface{}{
			r.Ticker, r.WindowSize, r.AvgSentiment, r.WeightedSentiment, uint32(r.MentionCount),
			r.SentimentStdDev, r.SentimentMomentum, r.AsOf.UTC(), uint8(r.Version),
		})
	}
	if err := s.ch.InsertBatch(ctx, insertAggregateSQL, rows); err != nil {
		s.l.Error("store aggregates", applogger.Int("records", len(records)), applogger.Error(err))
		return fmt.Errorf("store aggregates: %w", err)
	}
	return nil
}

func (s *ClickHouseAggregateStore) Latest(ctx context.Context, ticker, window string) (*models.AggregateRecord, error) {
	q := selectAggregateCols + ` WHERE ticker = ? AND window_size = ? ORDER BY as_of DESC LIMIT 1`
	return s.queryOne(ctx, q, ticker, window)
}

func (s *ClickHouseAggregateStore) LatestAny(ctx context.Context, ticker string) (*models.AggregateRecord, error) {
	q := selectAggregateCols + ` WHERE ticker = ? ORDER BY as_of DESC LIMIT 1`
	return s.queryOne(ctx, q, ticker)
}

func (s *ClickHouseAggregateStore) queryOne(ctx context.Context, q string, args ...interface{}) (*models.AggregateRecord, error) {
	r, err := scanAggregate(s.ch.DB().QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNoAggregate
	}
	if err != nil {
		return nil, fmt.Errorf("query latest aggregate: %w", err)
	}
	return r, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAggregate(row rowScanner) (*models.AggregateRecord, error) {
	var (
		r        models.AggregateRecord
		mentions uint32
		version  uint8
	)
	if err := row.Scan(&r.Ticker, &r.WindowSize, &r.AvgSentiment, &r.WeightedSentiment, &mentions,
		&r.SentimentStdDev, &r.SentimentMomentum, &r.AsOf, &version); err != nil {
		return nil, err
	}
	r.MentionCount = int(mentions)
	r.Version = int(version)
	r.AsOf = r.AsOf.UTC()
	return &r, nil
}

func (s *ClickHouseAggregateStore) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

// Close is a no-op; the pool is owned by the client.
func (s *ClickHouseAggregateStore) Close() error { return nil }
