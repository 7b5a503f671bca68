package repository

import (
	"context"

	"SentiTrader/internal/domain/models"
	domrepo "SentiTrader/internal/domain/repository"
	"SentiTrader/pkg/kafka"
)

var (
	_ domrepo.AggregatePublisher = (*KafkaAggregatePublisher)(nil)
	_ domrepo.SignalPublisher    = (*KafkaSignalPublisher)(nil)
)

// Publisher is the producer surface used by the stream publishers.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	PublishBatch(ctx context.Context, topic string, messages []kafka.Message) error
}

// KafkaAggregatePublisher writes aggregates keyed by ticker so one ticker stays on one partition.
type KafkaAggregatePublisher struct {
	p     Publisher
	topic string
}

func NewKafkaAggregatePublisher(p Publisher, topic string) *KafkaAggregatePublisher {
	return &KafkaAggregatePublisher{p: p, topic: topic}
}

func (k *KafkaAggregatePublisher) PublishAggregates(ctx context.Context, records []models.AggregateRecord) error {
	msgs := make([]kafka.Message, len(records))
	for i, r := range records {
		msgs[i] = kafka.Message{Key: []byte(r.Ticker), Value: r}
	}
	return k.p.PublishBatch(ctx, k.topic, msgs)
}

// KafkaSignalPublisher writes signals keyed by ticker.
type KafkaSignalPublisher struct {
	p     Publisher
	topic string
}

func NewKafkaSignalPublisher(p Publisher, topic string) *KafkaSignalPublisher {
	return &KafkaSignalPublisher{p: p, topic: topic}
}

func (k *KafkaSignalPublisher) PublishSignal(ctx context.Context, s *models.Signal) error {
	return k.p.Publish(ctx, k.topic, []byte(s.Ticker), s)
}
