package worker

import (
	"context"

	"SentiTrader/internal/domain/models"
	drepo "SentiTrader/internal/domain/repository"
	pkgkafka "SentiTrader/pkg/kafka"
	applogger "SentiTrader/pkg/logger"
	"SentiTrader/pkg/util"
)

// Generation is the part of usecase.SignalGenerator the stage drives.
type Generation interface {
	Run(ctx context.Context, tickers []string) []*models.Signal
	OpenTickers(ctx context.Context) ([]string, error)
}

// SignalWorker evaluates tickers with fresh aggregates for entry and every
// open position for exit. An empty read still re-checks open positions so
// time exits fire without new sentiment.
type SignalWorker struct {
	src       BatchSource
	gen       Generation
	batchSize int
	metrics   drepo.Metrics
	l         *applogger.Logger
}

func NewSignalWorker(src BatchSource, gen Generation, batchSize int, metrics drepo.Metrics, l *applogger.Logger) *SignalWorker {
	if l == nil {
		l = applogger.NewNop()
	}
	return &SignalWorker{
		src:       src,
		gen:       gen,
		batchSize: batchSize,
		metrics:   metrics,
		l:         l.With(applogger.String("component", "signal_worker")),
	}
}

func (w *SignalWorker) Name() string { return "signals" }

func (w *SignalWorker) Run(ctx context.Context) error {
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
			w.l.Warn("read aggregates", applogger.Error(err))
			w.recordError("signals_read")
			sleepCtx(ctx, readErrorBackoff)
		}
	}
	return nil
}

// Step evaluates the candidate set for one batch and commits it.
func (w *SignalWorker) Step(ctx context.Context, recs []pkgkafka.Record) []*models.Signal {
	candidates := make([]string, 0, len(recs))
	for _, rec := range recs {
		agg, err := models.DecodeAggregate(rec.Value)
		if err != nil {
			w.l.Warn("skip undecodable aggregate", applogger.Error(err))
			w.recordError("signals_decode")
			continue
		}
		candidates = append(candidates, agg.Ticker)
	}
	open, err := w.gen.OpenTickers(ctx)
	if err != nil {
		w.l.Warn("list open positions", applogger.Error(err))
		w.recordError("signals_positions")
	}
	candidates = util.UniqueTickers(append(candidates, open...)...)

	var signals []*models.Signal
	if len(candidates) > 0 {
		signals = w.gen.Run(ctx, candidates)
	}
	if err := w.src.Commit(ctx, recs); err != nil {
		w.l.Warn("commit aggregates", applogger.Error(err))
		w.recordError("signals_commit")
	}
	return signals
}

func (w *SignalWorker) recordError(kind string) {
	if w.metrics != nil {
		w.metrics.RecordError(kind)
	}
}
