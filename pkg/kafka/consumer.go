package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	"SentiTrader/pkg/logger"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// fetcher is the subset of *kafka.Reader the consumers use.
type fetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads registered topics and dispatches messages to a worker pool.
// At most one message per (topic, partition) is in flight, which preserves
// per-key order. Offsets are committed after handling, or after the message
// has been parked on the DLQ.
type Consumer struct {
	cfg       *ConsumerConfig
	log       *logger.Logger
	readers   map[string]fetcher
	handlers  map[string]MessageHandler
	stopChan  chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	msgChan   chan kafka.Message
	dlq       Writer
	lockMu    sync.Mutex
	partLocks map[string]map[int]*sync.Mutex
	hook      ConsumerHook
}

// NewConsumer creates a new Kafka consumer.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := defaultConsumerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	c := newConsumer(cfg)
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.DLQTopic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		}
	}
	return c, nil
}

func newConsumer(cfg *ConsumerConfig) *Consumer {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	initConsumerMetrics()
	return &Consumer{
		cfg:       cfg,
		log:       log.With(logger.String("component", "kafka_consumer")),
		readers:   make(map[string]fetcher),
		handlers:  make(map[string]MessageHandler),
		stopChan:  make(chan struct{}),
		msgChan:   make(chan kafka.Message, cfg.BufferSize),
		partLocks: make(map[string]map[int]*sync.Mutex),
		hook:      NoopHook{},
	}
}

// RegisterHandler registers a message handler for its topic. The first registration wins.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.log.Warn("handler already registered", logger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// WithConsumerHook sets a hook implementation for lifecycle events.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// Start creates one group reader per registered topic and starts the workers.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return errors.New("no handlers registered")
	}
	for topic := range c.handlers {
		if _, ok := c.readers[topic]; ok {
			continue
		}
		c.readers[topic] = kafka.NewReader(readerConfig(c.cfg, topic))
	}

	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.wg.Add(1)
		go c.messageWorker()
	}
	for topic, r := range c.readers {
		c.wg.Add(1)
		go c.consumeMessages(topic, r)
	}

	c.log.Info("kafka consumer started",
		logger.Int("workers", c.cfg.WorkerCount),
		logger.String("group", c.cfg.GroupID),
	)
	return nil
}

// Stop stops reading, drains in-flight work and closes the readers.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		close(c.stopChan)
		stopErr = c.waitForWg(ctx)

		for topic, r := range c.readers {
			if err := r.Close(); err != nil {
				c.log.Error("close reader", logger.String("topic", topic), logger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.log.Error("close dlq writer", logger.Error(err))
			}
		}
		if stopErr == nil {
			c.log.Info("kafka consumer stopped")
		}
	})
	return stopErr
}

func (c *Consumer) waitForWg(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
	case <-done:
		return nil
	}
}

func (c *Consumer) consumeMessages(topic string, r fetcher) {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ReadTimeout)
		msg, err := r.FetchMessage(ctx)
		cancel()
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) {
				c.log.Error("fetch message", logger.String("topic", topic), logger.Error(err))
				consumerErrors.WithLabelValues(topic, "fetch").Inc()
			}
			continue
		}

		select {
		case c.msgChan <- msg:
			consumerQueueDepth.WithLabelValues(topic).Set(float64(len(c.msgChan)))
		case <-c.stopChan:
			return
		}
	}
}

func (c *Consumer) messageWorker() {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopChan:
			return
		case msg := <-c.msgChan:
			c.process(msg)
		}
	}
}

// process handles one message end to end: hooks, retries, DLQ and commit.
func (c *Consumer) process(msg kafka.Message) {
	handler, ok := c.handlers[msg.Topic]
	if !ok {
		return
	}
	start := time.Now()

	pl := c.partitionLock(msg.Topic, msg.Partition)
	pl.Lock()
	defer pl.Unlock()

	err := c.handleWithRetry(handler, msg)
	if err != nil {
		c.log.Error("message handling failed",
			logger.String("topic", msg.Topic),
			logger.Int64("offset", msg.Offset),
			logger.Bool("permanent", IsPermanent(err)),
			logger.Error(err),
		)
		consumerErrors.WithLabelValues(msg.Topic, "handle").Inc()
		if !c.toDLQ(msg, err) {
			// no DLQ: leave the offset uncommitted so the group redelivers it
			return
		}
	}

	if r := c.readers[msg.Topic]; r != nil {
		_ = c.commitWithRetry(r, msg, 3)
	}
	consumerHandleLatency.WithLabelValues(msg.Topic).Observe(time.Since(start).Seconds())
}

func (c *Consumer) handleWithRetry(handler MessageHandler, msg kafka.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Permanent(fmt.Errorf("panic in handler: %v", r))
		}
	}()

	for attempt := 1; ; attempt++ {
		ctx, berr := c.hook.BeforeHandle(context.Background(), msg.Topic, msg)
		if ctx == nil {
			ctx = context.Background()
		}
		if berr != nil {
			err = berr
		} else {
			err = handler.Handle(ctx, msg.Value)
			c.hook.AfterHandle(ctx, msg.Topic, msg, err)
		}
		if err == nil {
			return nil
		}
		c.hook.OnError(ctx, msg.Topic, msg, err)
		if IsPermanent(err) || attempt > c.cfg.RetryMax {
			return err
		}

		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)):
		case <-c.stopChan:
			return err
		}
	}
}

// toDLQ parks msg on the dead-letter topic. It reports whether the offset may be committed.
func (c *Consumer) toDLQ(msg kafka.Message, cause error) bool {
	if c.dlq == nil {
		return false
	}
	headers := append([]kafka.Header{
		{Key: "source_topic", Value: []byte(msg.Topic)},
		{Key: "error", Value: []byte(cause.Error())},
	}, msg.Headers...)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.dlq.WriteMessages(ctx, kafka.Message{
		Key:     msg.Key,
		Value:   msg.Value,
		Time:    time.Now(),
		Headers: headers,
	}); err != nil {
		c.log.Error("write to dlq", logger.String("dlq", c.cfg.DLQTopic), logger.Error(err))
		return false
	}
	consumerDLQ.WithLabelValues(msg.Topic).Inc()
	return true
}

func (c *Consumer) commitWithRetry(r fetcher, msg kafka.Message, max int) error {
	var err error
	for attempt := 1; attempt <= max; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = r.CommitMessages(ctx, msg)
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.log.Error("commit offset", logger.Int("attempts", max), logger.Error(err))
	return err
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	c.lockMu.Lock()
	defer c.lockMu.Unlock()

	m, ok := c.partLocks[topic]
	if !ok {
		m = make(map[int]*sync.Mutex)
		c.partLocks[topic] = m
	}
	l, ok := m[partition]
	if !ok {
		l = &sync.Mutex{}
		m[partition] = l
	}
	return l
}

func readerConfig(cfg *ConsumerConfig, topic string) kafka.ReaderConfig {
	start := kafka.FirstOffset
	if cfg.StartOffset == "latest" {
		start = kafka.LastOffset
	}
	return kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.GroupID,
		MinBytes:    cfg.MinBytes,
		MaxBytes:    cfg.MaxBytes,
		MaxWait:     500 * time.Millisecond,
		StartOffset: start,
	}
}

func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	exp := min * time.Duration(1<<uint(attempt-1))
	if exp > max || exp <= 0 {
		exp = max
	}
	// jitter up to 50%
	half := int64(exp) / 2
	if half <= 0 {
		return exp
	}
	return exp - time.Duration(rand.Int63n(half))
}

var (
	consumerMetricsOnce   sync.Once
	consumerQueueDepth    *prometheus.GaugeVec
	consumerHandleLatency *prometheus.HistogramVec
	consumerErrors        *prometheus.CounterVec
	consumerDLQ           *prometheus.CounterVec
)

func initConsumerMetrics() {
	consumerMetricsOnce.Do(func() {
		consumerQueueDepth = promauto.NewGaugeVec(
			prometheus.GaugeOpts{Name: "sentitrader_kafka_consumer_queue_depth", Help: "Messages waiting in consumer queue"},
			[]string{"topic"},
		)
		consumerHandleLatency = promauto.NewHistogramVec(
			prometheus.HistogramOpts{Name: "sentitrader_kafka_consumer_handle_seconds", Help: "Handling time per message"},
			[]string{"topic"},
		)
		consumerErrors = promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "sentitrader_kafka_consumer_errors_total", Help: "Consumer errors by stage"},
			[]string{"topic", "stage"},
		)
		consumerDLQ = promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "sentitrader_kafka_consumer_dlq_total", Help: "Messages parked on the dead-letter topic"},
			[]string{"topic"},
		)
	})
}
