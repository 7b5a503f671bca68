package kafka

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTopic = "trade-signals"

func testConsumer(h MessageHandler, dlq *fakeWriter) (*Consumer, *fakeFetcher) {
	cfg := defaultConsumerConfig()
	cfg.RetryMax = 2
	cfg.BackoffMin = time.Millisecond
	cfg.BackoffMax = 2 * time.Millisecond
	c := newConsumer(cfg)
	if dlq != nil {
		cfg.DLQTopic = testTopic + "-dlq"
		c.dlq = dlq
	}
	f := &fakeFetcher{}
	c.RegisterHandler(h)
	c.readers[h.Topic()] = f
	return c, f
}

func TestProcess_SuccessCommits(t *testing.T) {
	var calls int32
	h := funcHandler{topic: testTopic, fn: func(context.Context, []byte) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}}
	c, f := testConsumer(h, nil)

	c.process(kafka.Message{Topic: testTopic, Offset: 3})

	assert.Equal(t, int32(1), calls)
	require.Len(t, f.committed, 1)
	assert.Equal(t, int64(3), f.committed[0].Offset)
}

func TestProcess_RetriesTransientThenDLQ(t *testing.T) {
	var calls int32
	h := funcHandler{topic: testTopic, fn: func(context.Context, []byte) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("db unavailable")
	}}
	dlq := &fakeWriter{}
	c, f := testConsumer(h, dlq)

	c.process(kafka.Message{Topic: testTopic, Value: []byte("payload")})

	assert.Equal(t, int32(3), calls) // first attempt plus RetryMax
	require.Len(t, dlq.written, 1)
	assert.Equal(t, []byte("payload"), dlq.written[0].Value)
	assert.Len(t, f.committed, 1)
}

func TestProcess_PermanentSkipsRetry(t *testing.T) {
	var calls int32
	h := funcHandler{topic: testTopic, fn: func(context.Context, []byte) error {
		atomic.AddInt32(&calls, 1)
		return Permanent(errors.New("bad payload"))
	}}
	dlq := &fakeWriter{}
	c, _ := testConsumer(h, dlq)

	c.process(kafka.Message{Topic: testTopic})

	assert.Equal(t, int32(1), calls)
	require.Len(t, dlq.written, 1)
	assert.Equal(t, "source_topic", dlq.written[0].Headers[0].Key)
}

func TestProcess_NoDLQLeavesOffsetUncommitted(t *testing.T) {
	h := funcHandler{topic: testTopic, fn: func(context.Context, []byte) error {
		return Permanent(errors.New("bad payload"))
	}}
	c, f := testConsumer(h, nil)

	c.process(kafka.Message{Topic: testTopic})

	assert.Empty(t, f.committed)
}

func TestProcess_PanicIsPermanent(t *testing.T) {
	h := funcHandler{topic: testTopic, fn: func(context.Context, []byte) error {
		panic("boom")
	}}
	dlq := &fakeWriter{}
	c, _ := testConsumer(h, dlq)

	assert.NotPanics(t, func() { c.process(kafka.Message{Topic: testTopic}) })
	assert.Len(t, dlq.written, 1)
}

func TestTraceHook_PropagatesHeader(t *testing.T) {
	var seen string
	h := funcHandler{topic: testTopic, fn: func(ctx context.Context, _ []byte) error {
		seen = TraceIDFrom(ctx)
		return nil
	}}
	c, _ := testConsumer(h, nil)
	c.WithConsumerHook(NewHookChain(TraceHook()))

	c.process(kafka.Message{Topic: testTopic, Headers: []kafka.Header{{Key: HeaderTraceID, Value: []byte("t-1")}}})
	assert.Equal(t, "t-1", seen)

	c.process(kafka.Message{Topic: testTopic})
	assert.NotEmpty(t, seen)
	assert.NotEqual(t, "t-1", seen)
}

func TestHookChain_RecoversPanickingHook(t *testing.T) {
	chain := NewHookChain(HookFuncs{
		Before: func(context.Context, string, kafka.Message) (context.Context, error) {
			panic("bad hook")
		},
	})
	_, err := chain.BeforeHandle(context.Background(), testTopic, kafka.Message{})
	assert.ErrorContains(t, err, "hook panic")
}

func TestBackoffWithJitter_Bounded(t *testing.T) {
	for attempt := 1; attempt <= 10; attempt++ {
		d := backoffWithJitter(10*time.Millisecond, 100*time.Millisecond, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 100*time.Millisecond)
	}
}

func TestProducer_PublishBatchSetsKeyAndTrace(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, "snappy")

	ctx := WithTraceID(context.Background(), "trace-9")
	err := p.PublishBatch(ctx, "sentiment-aggregates", []Message{
		{Key: []byte("AAPL"), Value: map[string]int{"n": 1}},
		{Key: []byte("TSLA"), Value: "raw"},
	})
	require.NoError(t, err)
	require.Len(t, w.written, 2)
	assert.Equal(t, "AAPL", string(w.written[0].Key))
	assert.JSONEq(t, `{"n":1}`, string(w.written[0].Value))
	assert.Equal(t, "raw", string(w.written[1].Value))
	assert.Equal(t, "trace-9", ExtractTraceID(w.written[1]))
}

func TestProducer_WriteErrorIsWrapped(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := NewProducerWithWriter(w, "snappy")

	err := p.Publish(context.Background(), "trade-signals", nil, "x")
	assert.ErrorContains(t, err, "leader not available")
}

func TestPermanent(t *testing.T) {
	assert.Nil(t, Permanent(nil))
	base := errors.New("x")
	err := Permanent(base)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
}
