package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"SentiTrader/internal/domain/models"
	drepo "SentiTrader/internal/domain/repository"
	applogger "SentiTrader/pkg/logger"
)

// AggregatorConfig holds the windows to compute and cache lifetime.
type AggregatorConfig struct {
	Windows   []models.Window
	Retention time.Duration
	CacheTTL  time.Duration
}

// Aggregator buffers sentiment datapoints per ticker and turns them into
// windowed aggregate records.
type Aggregator struct {
	cfg     AggregatorConfig
	store   drepo.AggregateStore
	cache   drepo.AggregateCache
	pub     drepo.AggregatePublisher
	metrics drepo.Metrics
	l       *applogger.Logger

	mu       sync.Mutex
	buffers  map[string][]models.SentimentDatapoint
	lastAsOf map[string]time.Time
}

func NewAggregator(
	cfg AggregatorConfig,
	store drepo.AggregateStore,
	cache drepo.AggregateCache,
	pub drepo.AggregatePublisher,
	metrics drepo.Metrics,
	l *applogger.Logger,
) *Aggregator {
	if cfg.Retention <= 0 {
		cfg.Retention = time.Hour
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &Aggregator{
		cfg:      cfg,
		store:    store,
		cache:    cache,
		pub:      pub,
		metrics:  metrics,
		l:        l.With(applogger.String("component", "aggregator")),
		buffers:  make(map[string][]models.SentimentDatapoint),
		lastAsOf: make(map[string]time.Time),
	}
}

// AddDatapoint inserts d into its ticker buffer, keeping timestamp order.
func (a *Aggregator) AddDatapoint(d models.SentimentDatapoint) {
	a.mu.Lock()
	defer a.mu.Unlock()

	buf := a.buffers[d.Ticker]
	if n := len(buf); n == 0 || !d.Timestamp.Before(buf[n-1].Timestamp) {
		a.buffers[d.Ticker] = append(buf, d)
		return
	}
	i := sort.Search(len(buf), func(i int) bool { return buf[i].Timestamp.After(d.Timestamp) })
	buf = append(buf, models.SentimentDatapoint{})
	copy(buf[i+1:], buf[i:])
	buf[i] = d
	a.buffers[d.Ticker] = buf
}

// Ingest adds one datapoint per ticker mentioned by the event.
func (a *Aggregator) Ingest(e *models.SentimentEvent, received time.Time) int {
	points := e.Datapoints(received)
	for _, d := range points {
		a.AddDatapoint(d)
	}
	if a.metrics != nil && len(points) > 0 {
		a.metrics.RecordDatapoints(len(points))
	}
	return len(points)
}

// RunCycle computes one record per ticker and window that has data in
// [now-window, now], then stores, caches and publishes them as one batch.
// A (ticker, window) pair is emitted at most once per asOf.
func (a *Aggregator) RunCycle(ctx context.Context, now time.Time) ([]models.AggregateRecord, error) {
	records := a.compute(now)
	if len(records) == 0 {
		return nil, nil
	}

	if err := a.store.StoreBatch(ctx, records); err != nil {
		return nil, fmt.Errorf("persist aggregates: %w", err)
	}

	a.mu.Lock()
	for _, r := range records {
		a.lastAsOf[r.CacheKey()] = r.AsOf
	}
	a.mu.Unlock()

	if err := a.cache.SetBatch(ctx, records, a.cfg.CacheTTL); err != nil {
		a.l.Warn("cache aggregates", applogger.Int("records", len(records)), applogger.Error(err))
		if a.metrics != nil {
			a.metrics.RecordError("aggregate_cache")
		}
	}
	if a.pub != nil {
		if err := a.pub.PublishAggregates(ctx, records); err != nil {
			a.l.Warn("publish aggregates", applogger.Int("records", len(records)), applogger.Error(err))
			if a.metrics != nil {
				a.metrics.RecordError("aggregate_publish")
			}
		}
	}

	if a.metrics != nil {
		perWindow := make(map[string]int)
		for _, r := range records {
			perWindow[r.WindowSize]++
		}
		for w, n := range perWindow {
			a.metrics.RecordAggregates(w, n)
		}
	}
	a.l.Debug("aggregation cycle", applogger.Int("records", len(records)))
	return records, nil
}

func (a *Aggregator) compute(now time.Time) []models.AggregateRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	tickers := make([]string, 0, len(a.buffers))
	for t := range a.buffers {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	var out []models.AggregateRecord
	for _, ticker := range tickers {
		buf := a.buffers[ticker]
		for _, w := range a.cfg.Windows {
			rec, ok := ComputeAggregate(ticker, w, buf, now)
			if !ok {
				continue
			}
			if last, seen := a.lastAsOf[rec.CacheKey()]; seen && !rec.AsOf.After(last) {
				continue
			}
			out = append(out, rec)
		}
	}
	return out
}

// Cleanup drops datapoints older than maxAge and removes empty ticker buffers.
func (a *Aggregator) Cleanup(now time.Time, maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = a.cfg.Retention
	}
	cutoff := now.Add(-maxAge)

	a.mu.Lock()
	defer a.mu.Unlock()

	removed := 0
	for ticker, buf := range a.buffers {
		i := sort.Search(len(buf), func(i int) bool { return !buf[i].Timestamp.Before(cutoff) })
		removed += i
		if i == len(buf) {
			delete(a.buffers, ticker)
			for _, w := range a.cfg.Windows {
				delete(a.lastAsOf, models.AggregateCacheKey(ticker, w.Name))
			}
			continue
		}
		if i > 0 {
			a.buffers[ticker] = append([]models.SentimentDatapoint(nil), buf[i:]...)
		}
	}
	return removed
}

// Buffered returns the number of datapoints held per ticker.
func (a *Aggregator) Buffered() map[string]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]int, len(a.buffers))
	for t, buf := range a.buffers {
		out[t] = len(buf)
	}
	return out
}

// ComputeAggregate summarizes points (sorted by time) over [now-w, now].
// Momentum compares with the disjoint prior window [now-2w, now-w) and is 0
// when that window is empty. ok is false when the current window is empty.
func ComputeAggregate(ticker string, w models.Window, points []models.SentimentDatapoint, now time.Time) (models.AggregateRecord, bool) {
	start := now.Add(-w.Duration)
	priorStart := start.Add(-w.Duration)

	var cur, prior []float64
	var weighted, weights float64
	for _, p := range points {
		switch {
		case p.Timestamp.After(now) || p.Timestamp.Before(priorStart):
			// outside both windows
		case p.Timestamp.Before(start):
			prior = append(prior, p.Sentiment)
		default:
			cur = append(cur, p.Sentiment)
			weighted += p.Sentiment * p.Weight()
			weights += p.Weight()
		}
	}
	if len(cur) == 0 {
		return models.AggregateRecord{}, false
	}

	avg := mean(cur)
	var momentum float64
	if len(prior) > 0 {
		momentum = avg - mean(prior)
	}
	return models.AggregateRecord{
		Version:           models.AggregateVersion,
		Ticker:            ticker,
		WindowSize:        w.Name,
		AvgSentiment:      avg,
		WeightedSentiment: weighted / weights,
		MentionCount:      len(cur),
		SentimentStdDev:   sampleStdDev(cur, avg),
		SentimentMomentum: momentum,
		AsOf:              now.UTC(),
	}, true
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sampleStdDev is 0 below two observations.
func sampleStdDev(xs []float64, avg float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var ss float64
	for _, x := range xs {
		d := x - avg
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
