package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"SentiTrader/pkg/util"
)

// AggregateVersion is the schema version stamped on published aggregates.
const AggregateVersion = 1

// SentimentScore is the classifier output attached to a scored post.
type SentimentScore struct {
	Score      float64 `json:"score"`
	Positive   float64 `json:"positive,omitempty"`
	Negative   float64 `json:"negative,omitempty"`
	Neutral    float64 `json:"neutral,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// EventTime accepts unix seconds (integer or fractional) or an RFC3339 string.
type EventTime struct {
	time.Time
}

func (t *EventTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		parsed, ok := util.ParseTime(s)
		if !ok {
			return fmt.Errorf("unparseable timestamp %q", s)
		}
		t.Time = parsed.UTC()
		return nil
	}
	secs, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("unparseable timestamp %s: %w", b, err)
	}
	whole, frac := math.Modf(secs)
	t.Time = time.Unix(int64(whole), int64(frac*1e9)).UTC()
	return nil
}

func (t EventTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

// SentimentEvent is one scored post read from the sentiment stream.
type SentimentEvent struct {
	Version     int            `json:"version,omitempty"`
	ID          string         `json:"id,omitempty"`
	Source      string         `json:"source,omitempty"`
	Ticker      string         `json:"ticker,omitempty"`
	Tickers     []string       `json:"tickers,omitempty"`
	Engagement  float64        `json:"score"`
	Sentiment   SentimentScore `json:"sentiment"`
	ProcessedAt EventTime      `json:"processed_at"`
}

// DecodeSentimentEvent parses a stream payload. Events without any ticker are rejected.
func DecodeSentimentEvent(b []byte) (*SentimentEvent, error) {
	var e SentimentEvent
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if len(e.Symbols()) == 0 {
		return nil, fmt.Errorf("%w: no ticker", ErrInvalidEvent)
	}
	return &e, nil
}

// Symbols returns the distinct, upper-cased tickers the event mentions.
func (e *SentimentEvent) Symbols() []string {
	return util.UniqueTickers(append([]string{e.Ticker}, e.Tickers...)...)
}

// Datapoints fans the event out into one datapoint per mentioned ticker.
// fallback is used when the event carries no timestamp.
func (e *SentimentEvent) Datapoints(fallback time.Time) []SentimentDatapoint {
	ts := e.ProcessedAt.Time
	if ts.IsZero() {
		ts = fallback
	}
	symbols := e.Symbols()
	out := make([]SentimentDatapoint, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, SentimentDatapoint{
			Timestamp:  ts,
			Ticker:     s,
			Sentiment:  math.Max(-1, math.Min(1, e.Sentiment.Score)),
			Engagement: e.Engagement,
			Source:     e.Source,
		})
	}
	return out
}

// SentimentDatapoint is a single (ticker, time, score) observation held by the aggregator.
type SentimentDatapoint struct {
	Timestamp  time.Time
	Ticker     string
	Sentiment  float64
	Engagement float64
	Source     string
}

// Weight is the engagement weight of the datapoint, never below 1.
func (d SentimentDatapoint) Weight() float64 {
	return math.Max(1, d.Engagement)
}

// AggregateRecord summarizes one ticker over one window ending at AsOf.
type AggregateRecord struct {
	Version           int       `json:"version"`
	Ticker            string    `json:"ticker" validate:"required"`
	WindowSize        string    `json:"window_size" validate:"required"`
	AvgSentiment      float64   `json:"avg_sentiment"`
	WeightedSentiment float64   `json:"weighted_sentiment"`
	MentionCount      int       `json:"mention_count" validate:"gte=0"`
	SentimentStdDev   float64   `json:"sentiment_std" validate:"gte=0"`
	SentimentMomentum float64   `json:"sentiment_momentum"`
	AsOf              time.Time `json:"as_of"`
}

// CacheKey is the key the record is cached under.
func (r AggregateRecord) CacheKey() string {
	return AggregateCacheKey(r.Ticker, r.WindowSize)
}

// AggregateCacheKey builds "sentiment:{ticker}:{window}".
func AggregateCacheKey(ticker, window string) string {
	return "sentiment:" + ticker + ":" + window
}

// DecodeAggregate parses an aggregate from the aggregates stream.
func DecodeAggregate(b []byte) (*AggregateRecord, error) {
	var r AggregateRecord
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	if err := ValidateStruct(r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Window is a named rolling window such as "5min" or "1h".
type Window struct {
	Name     string
	Duration time.Duration
}

// ParseWindow accepts "<n>s", "<n>min", "<n>m" and "<n>h".
func ParseWindow(s string) (Window, error) {
	name := strings.TrimSpace(strings.ToLower(s))
	var unit time.Duration
	var num string
	switch {
	case strings.HasSuffix(name, "min"):
		unit, num = time.Minute, strings.TrimSuffix(name, "min")
	case strings.HasSuffix(name, "m"):
		unit, num = time.Minute, strings.TrimSuffix(name, "m")
	case strings.HasSuffix(name, "h"):
		unit, num = time.Hour, strings.TrimSuffix(name, "h")
	case strings.HasSuffix(name, "s"):
		unit, num = time.Second, strings.TrimSuffix(name, "s")
	default:
		return Window{}, fmt.Errorf("%w: %q", ErrInvalidWindow, s)
	}
	n, err := strconv.Atoi(num)
	if err != nil || n <= 0 {
		return Window{}, fmt.Errorf("%w: %q", ErrInvalidWindow, s)
	}
	return Window{Name: name, Duration: time.Duration(n) * unit}, nil
}

// ParseWindows parses a list of window names, failing on the first bad one.
func ParseWindows(names []string) ([]Window, error) {
	out := make([]Window, 0, len(names))
	for _, n := range names {
		w, err := ParseWindow(n)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}
