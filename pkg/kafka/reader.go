package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"SentiTrader/pkg/logger"
)

// Record is one message returned by BatchReader.
type Record struct {
	Key     []byte
	Value   []byte
	Time    time.Time
	TraceID string
	raw     kafka.Message
}

// BatchReader is a pull-based group reader for stages that process input in
// batches and commit only after the whole batch is done. The committed group
// offset is the stage's resume cursor.
type BatchReader struct {
	topic   string
	cfg     *ConsumerConfig
	r       fetcher
	log     *logger.Logger
	linger  time.Duration
	maxSize int
}

// NewBatchReader opens a group reader on topic.
func NewBatchReader(topic string, opts ...ConsumerOption) (*BatchReader, error) {
	cfg := defaultConsumerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	return newBatchReader(topic, cfg, kafka.NewReader(readerConfig(cfg, topic))), nil
}

func newBatchReader(topic string, cfg *ConsumerConfig, r fetcher) *BatchReader {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &BatchReader{
		topic:   topic,
		cfg:     cfg,
		r:       r,
		log:     log.With(logger.String("topic", topic)),
		linger:  50 * time.Millisecond,
		maxSize: 100,
	}
}

func (b *BatchReader) Topic() string { return b.topic }

// ReadBatch returns up to max records. The first record is awaited for at most
// the configured read timeout; further records are collected while they keep
// arriving within the linger interval. An empty batch with a nil error means
// the read timed out. A fetch error after the first record ends the batch
// without an error so the records already fetched are processed and
// committed; the next read surfaces the error if it persists.
func (b *BatchReader) ReadBatch(ctx context.Context, max int) ([]Record, error) {
	if max <= 0 {
		max = b.maxSize
	}
	out := make([]Record, 0, max)

	wait := b.cfg.ReadTimeout
	for len(out) < max {
		fctx, cancel := context.WithTimeout(ctx, wait)
		msg, err := b.r.FetchMessage(fctx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return out, nil
			}
			if len(out) > 0 {
				b.log.Warn("fetch failed mid-batch", logger.Int("records", len(out)), logger.Error(err))
				return out, nil
			}
			return nil, fmt.Errorf("fetch %s: %w", b.topic, err)
		}
		out = append(out, Record{
			Key:     msg.Key,
			Value:   msg.Value,
			Time:    msg.Time,
			TraceID: ExtractTraceID(msg),
			raw:     msg,
		})
		wait = b.linger
	}
	return out, nil
}

// Commit advances the group cursor past the given records.
func (b *BatchReader) Commit(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, len(records))
	for i, r := range records {
		msgs[i] = r.raw
	}
	if err := b.r.CommitMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("commit %s: %w", b.topic, err)
	}
	return nil
}

func (b *BatchReader) Close() error {
	return b.r.Close()
}
