package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"SentiTrader/internal/domain/models"
	drepo "SentiTrader/internal/domain/repository"
	applogger "SentiTrader/pkg/logger"
	"SentiTrader/pkg/util"
)

// StrategyParams are the entry and exit thresholds of the sentiment strategy.
type StrategyParams struct {
	SignalWindow       string
	SentimentThreshold float64
	MinMentions        int
	VolumeMultiplier   float64
	StdDevFloor        float64
	TakeProfitPct      float64
	StopLossPct        float64
	MaxHold            time.Duration
	ReversalThreshold  float64
	MarketBars         int
}

// DefaultStrategyParams returns the stock thresholds.
func DefaultStrategyParams() StrategyParams {
	return StrategyParams{
		SignalWindow:       "5min",
		SentimentThreshold: 0.7,
		MinMentions:        15,
		VolumeMultiplier:   1.5,
		StdDevFloor:        0.1,
		TakeProfitPct:      0.03,
		StopLossPct:        0.02,
		MaxHold:            time.Hour,
		ReversalThreshold:  0.3,
		MarketBars:         20,
	}
}

// SignalGenerator decides per ticker whether to enter (FLAT) or exit (LONG).
// It keeps no state between calls: position and sentiment are read back each time.
type SignalGenerator struct {
	p          StrategyParams
	aggregates drepo.AggregateReader
	market     drepo.MarketData
	positions  drepo.PositionReader
	clock      MarketClock
	pub        drepo.SignalPublisher
	metrics    drepo.Metrics
	l          *applogger.Logger
	now        func() time.Time
}

func NewSignalGenerator(
	p StrategyParams,
	aggregates drepo.AggregateReader,
	market drepo.MarketData,
	positions drepo.PositionReader,
	clock MarketClock,
	pub drepo.SignalPublisher,
	metrics drepo.Metrics,
	l *applogger.Logger,
) *SignalGenerator {
	if l == nil {
		l = applogger.NewNop()
	}
	return &SignalGenerator{
		p:          p,
		aggregates: aggregates,
		market:     market,
		positions:  positions,
		clock:      clock,
		pub:        pub,
		metrics:    metrics,
		l:          l.With(applogger.String("component", "signal_generator")),
		now:        time.Now,
	}
}

// Generate evaluates one ticker. A nil signal with a nil error means no action.
// Evaluation only happens while the market is open: outside the session a DAY
// market order would queue past the fill wait.
func (g *SignalGenerator) Generate(ctx context.Context, ticker string) (*models.Signal, error) {
	now := g.now()
	open, err := g.clock.IsOpen(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("market clock: %w", err)
	}
	if !open {
		return nil, nil
	}

	pos, err := g.positions.Position(ctx, ticker)
	switch {
	case err == nil:
		return g.evaluateExit(ctx, pos, now)
	case errors.Is(err, models.ErrPositionNotFound):
		return g.evaluateEntry(ctx, ticker, now)
	default:
		return nil, fmt.Errorf("read position: %w", err)
	}
}

func (g *SignalGenerator) evaluateEntry(ctx context.Context, ticker string, now time.Time) (*models.Signal, error) {
	agg, err := g.aggregates.Latest(ctx, ticker, g.p.SignalWindow)
	if errors.Is(err, models.ErrNoAggregate) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read aggregate: %w", err)
	}

	// sentiment rules first so quiet tickers do not cost a market data call
	if !sentimentEntry(agg, g.p) {
		return nil, nil
	}

	snap, err := g.market.Snapshot(ctx, ticker, g.p.MarketBars)
	if errors.Is(err, models.ErrNoMarketData) {
		g.l.Debug("no market data, skipping entry", applogger.String("ticker", ticker))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read market data: %w", err)
	}

	ok, reason := EvaluateEntry(agg, snap, g.p)
	if !ok {
		return nil, nil
	}
	price := decimal.NewFromFloat(snap.Close)
	return &models.Signal{
		Version:    models.SignalVersion,
		Timestamp:  now.UTC(),
		Ticker:     ticker,
		Action:     models.ActionBuy,
		Confidence: clamp01(agg.AvgSentiment),
		Reason:     reason,
		Metadata: models.SignalMetadata{
			Price:     &price,
			Volume:    snap.Volume,
			AvgVolume: snap.AvgVolume,
			Sentiment: models.SnapshotOf(agg),
		},
	}, nil
}

// sentimentEntry checks threshold, mentions and the momentum spike. A zero
// stdev is replaced by the floor so a single datapoint cannot fake a spike.
func sentimentEntry(agg *models.AggregateRecord, p StrategyParams) bool {
	sd := agg.SentimentStdDev
	if sd == 0 {
		sd = p.StdDevFloor
	}
	return agg.AvgSentiment > p.SentimentThreshold &&
		agg.MentionCount >= p.MinMentions &&
		agg.SentimentMomentum > 2*sd
}

// EvaluateEntry applies the sentiment, mention, spike and volume rules. The
// market hours and flat-position rules are checked by the caller.
func EvaluateEntry(agg *models.AggregateRecord, snap *models.MarketSnapshot, p StrategyParams) (bool, string) {
	if agg == nil || snap == nil || !sentimentEntry(agg, p) {
		return false, ""
	}
	if snap.AvgVolume <= 0 || snap.Volume <= snap.AvgVolume*p.VolumeMultiplier {
		return false, ""
	}
	return true, fmt.Sprintf("BUY: sentiment=%.2f, mentions=%d, momentum=%.3f, volume=%.1fx",
		agg.AvgSentiment, agg.MentionCount, agg.SentimentMomentum, snap.VolumeRatio())
}

func (g *SignalGenerator) evaluateExit(ctx context.Context, pos *models.Position, now time.Time) (*models.Signal, error) {
	agg, err := g.aggregates.LatestAny(ctx, pos.Ticker)
	if errors.Is(err, models.ErrNoAggregate) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read aggregate: %w", err)
	}

	price := pos.CurrentPrice
	snap, err := g.market.Snapshot(ctx, pos.Ticker, g.p.MarketBars)
	switch {
	case err == nil:
		price = decimal.NewFromFloat(snap.Close)
	case errors.Is(err, models.ErrNoMarketData):
		// keep the last known price
	default:
		g.l.Warn("market data unavailable, using last known price",
			applogger.String("ticker", pos.Ticker), applogger.Error(err))
	}

	reason, ok := EvaluateExit(pos, price, agg, now, g.p)
	if !ok {
		return nil, nil
	}
	sig := &models.Signal{
		Version:    models.SignalVersion,
		Timestamp:  now.UTC(),
		Ticker:     pos.Ticker,
		Action:     models.ActionSell,
		Confidence: 1.0,
		Reason:     reason,
		Metadata:   models.SignalMetadata{Sentiment: models.SnapshotOf(agg)},
	}
	if price.IsPositive() {
		sig.Metadata.Price = &price
	}
	if snap != nil {
		sig.Metadata.Volume = snap.Volume
		sig.Metadata.AvgVolume = snap.AvgVolume
	}
	return sig, nil
}

// EvaluateExit returns the first exit rule that fires, in priority order:
// take profit, stop loss, time exit, sentiment reversal. Price rules are
// skipped when no price is known.
func EvaluateExit(pos *models.Position, price decimal.Decimal, agg *models.AggregateRecord, now time.Time, p StrategyParams) (string, bool) {
	if price.IsPositive() {
		ret := pos.ReturnPct(price)
		if ret >= p.TakeProfitPct {
			return fmt.Sprintf("Take profit: %.1f%% gain", ret*100), true
		}
		if ret <= -p.StopLossPct {
			return fmt.Sprintf("Stop loss: %.1f%% loss", ret*100), true
		}
	}
	if p.MaxHold > 0 && now.Sub(pos.EntryTimestamp) > p.MaxHold {
		return fmt.Sprintf("Time exit: held %d minutes", util.MinutesHeld(pos.EntryTimestamp, now)), true
	}
	if agg != nil && agg.AvgSentiment < p.ReversalThreshold {
		return fmt.Sprintf("Sentiment reversal: %.2f", agg.AvgSentiment), true
	}
	return "", false
}

// Run evaluates every ticker independently and publishes the resulting
// signals. A failure on one ticker is logged and does not stop the others.
func (g *SignalGenerator) Run(ctx context.Context, tickers []string) []*models.Signal {
	sort.Strings(tickers)
	var out []*models.Signal
	for _, ticker := range tickers {
		sig, err := g.Generate(ctx, ticker)
		if err != nil {
			g.l.Warn("signal evaluation skipped", applogger.String("ticker", ticker), applogger.Error(err))
			if g.metrics != nil {
				g.metrics.RecordError("signal_evaluate")
			}
			continue
		}
		if sig == nil {
			continue
		}
		if err := g.pub.PublishSignal(ctx, sig); err != nil {
			g.l.Error("publish signal", applogger.String("ticker", ticker), applogger.Error(err))
			if g.metrics != nil {
				g.metrics.RecordError("signal_publish")
			}
			continue
		}
		if g.metrics != nil {
			g.metrics.RecordSignal(sig.Action)
		}
		g.l.Info("signal emitted",
			applogger.String("ticker", sig.Ticker),
			applogger.String("action", string(sig.Action)),
			applogger.Float64("confidence", sig.Confidence),
			applogger.String("reason", sig.Reason))
		out = append(out, sig)
	}
	return out
}

// OpenTickers lists tickers with an open position, the exit candidates.
func (g *SignalGenerator) OpenTickers(ctx context.Context) ([]string, error) {
	ps, err := g.positions.Positions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Ticker
	}
	return out, nil
}

func clamp01(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}
