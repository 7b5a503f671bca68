package worker

import (
	"context"
	"time"

	"SentiTrader/internal/domain/models"
	drepo "SentiTrader/internal/domain/repository"
	pkgkafka "SentiTrader/pkg/kafka"
	applogger "SentiTrader/pkg/logger"
)

// Aggregation is the part of usecase.Aggregator the stage drives.
type Aggregation interface {
	Ingest(e *models.SentimentEvent, received time.Time) int
	RunCycle(ctx context.Context, now time.Time) ([]models.AggregateRecord, error)
	Cleanup(now time.Time, maxAge time.Duration) int
}

// AggregatorWorker reads scored sentiment events, buffers them and emits
// aggregates after every read, including empty ones.
type AggregatorWorker struct {
	src       BatchSource
	agg       Aggregation
	batchSize int
	retention time.Duration
	metrics   drepo.Metrics
	l         *applogger.Logger
	now       func() time.Time
}

func NewAggregatorWorker(src BatchSource, agg Aggregation, batchSize int, retention time.Duration, metrics drepo.Metrics, l *applogger.Logger) *AggregatorWorker {
	if l == nil {
		l = applogger.NewNop()
	}
	return &AggregatorWorker{
		src:       src,
		agg:       agg,
		batchSize: batchSize,
		retention: retention,
		metrics:   metrics,
		l:         l.With(applogger.String("component", "aggregator_worker")),
		now:       time.Now,
	}
}

func (w *AggregatorWorker) Name() string { return "aggregator" }

func (w *AggregatorWorker) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		recs, err := w.src.ReadBatch(ctx, w.batchSize)
		if err != nil && ctx.Err() != nil {
			return nil
		}
		// records returned with an error are already past the reader position
		if err == nil || len(recs) > 0 {
			w.Step(ctx, recs)
		}
		if err != nil {
			w.l.Warn("read sentiment events", applogger.Error(err))
			w.recordError("aggregator_read")
			sleepCtx(ctx, readErrorBackoff)
		}
	}
	return nil
}

// Step ingests one batch and runs an aggregation cycle. The batch is only
// committed once the cycle persisted; on failure the buffered datapoints are
// retried on the next cycle and the offsets are committed with a later batch.
func (w *AggregatorWorker) Step(ctx context.Context, recs []pkgkafka.Record) {
	now := w.now()
	ingested := 0
	for _, rec := range recs {
		e, err := models.DecodeSentimentEvent(rec.Value)
		if err != nil {
			w.l.Warn("skip undecodable sentiment event", applogger.Error(err))
			w.recordError("aggregator_decode")
			continue
		}
		received := rec.Time
		if received.IsZero() {
			received = now
		}
		ingested += w.agg.Ingest(e, received)
	}

	records, err := w.agg.RunCycle(ctx, now)
	if err != nil {
		w.l.Warn("aggregation cycle failed", applogger.Error(err))
		w.recordError("aggregator_cycle")
		return
	}
	if err := w.src.Commit(ctx, recs); err != nil {
		w.l.Warn("commit sentiment events", applogger.Error(err))
		w.recordError("aggregator_commit")
	}
	removed := w.agg.Cleanup(now, w.retention)

	if len(recs) > 0 || len(records) > 0 {
		w.l.Debug("aggregator step",
			applogger.Int("events", len(recs)),
			applogger.Int("datapoints", ingested),
			applogger.Int("aggregates", len(records)),
			applogger.Int("expired", removed))
	}
}

func (w *AggregatorWorker) recordError(kind string) {
	if w.metrics != nil {
		w.metrics.RecordError(kind)
	}
}
