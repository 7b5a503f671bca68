package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Action is the direction of a trade signal.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// SignalVersion is the schema version of Signal records on the signals stream.
const SignalVersion = 1

// Signal is an immutable trading decision emitted by the signal generator.
type Signal struct {
	Version    int            `json:"version" validate:"eq=1"`
	Timestamp  time.Time      `json:"timestamp"`
	Ticker     string         `json:"ticker" validate:"required,max=16"`
	Action     Action         `json:"action" validate:"required,oneof=BUY SELL"`
	Confidence float64        `json:"confidence" validate:"gte=0,lte=1"`
	Reason     string         `json:"reason" validate:"required"`
	Metadata   SignalMetadata `json:"metadata"`
}

// SignalMetadata is the market and sentiment snapshot taken when the signal fired.
type SignalMetadata struct {
	Price     *decimal.Decimal   `json:"price,omitempty"`
	Volume    float64            `json:"volume,omitempty"`
	AvgVolume float64            `json:"avg_volume,omitempty"`
	Sentiment *SentimentSnapshot `json:"sentiment,omitempty"`
}

// SentimentSnapshot copies the aggregate a signal was derived from.
type SentimentSnapshot struct {
	Window            string    `json:"window"`
	AvgSentiment      float64   `json:"avg_sentiment"`
	WeightedSentiment float64   `json:"weighted_sentiment"`
	MentionCount      int       `json:"mention_count"`
	StdDev            float64   `json:"stddev"`
	Momentum          float64   `json:"momentum"`
	AsOf              time.Time `json:"as_of"`
}

// SnapshotOf copies an aggregate into a signal snapshot.
func SnapshotOf(r *AggregateRecord) *SentimentSnapshot {
	if r == nil {
		return nil
	}
	return &SentimentSnapshot{
		Window:            r.WindowSize,
		AvgSentiment:      r.AvgSentiment,
		WeightedSentiment: r.WeightedSentiment,
		MentionCount:      r.MentionCount,
		StdDev:            r.SentimentStdDev,
		Momentum:          r.SentimentMomentum,
		AsOf:              r.AsOf,
	}
}

// Validate checks the field constraints of a signal.
func (s *Signal) Validate() error {
	if s.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp required", ErrInvalidSignal)
	}
	if err := ValidateStruct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignal, err)
	}
	return nil
}

// SentimentScore returns the average sentiment recorded with the signal, or 0.
func (s *Signal) SentimentScore() float64 {
	if s.Metadata.Sentiment == nil {
		return 0
	}
	return s.Metadata.Sentiment.AvgSentiment
}

// DecodeSignal decodes and validates a signal from the signals stream.
func DecodeSignal(b []byte) (*Signal, error) {
	var s Signal
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignal, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}
