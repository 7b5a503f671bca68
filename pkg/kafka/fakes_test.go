package kafka

import (
	"context"
	"sync"

	"github.com/segmentio/kafka-go"
)

type fakeFetcher struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
	fetchErr  error
	// fetchErr is returned once this many messages were fetched
	failAfter int
	fetched   int
}

func (f *fakeFetcher) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if f.fetchErr != nil && f.fetched >= f.failAfter {
		err := f.fetchErr
		f.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(f.queue) > 0 {
		m := f.queue[0]
		f.queue = f.queue[1:]
		f.fetched++
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeFetcher) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, msgs...)
	return nil
}

func (f *fakeFetcher) Close() error { return nil }

type fakeWriter struct {
	mu      sync.Mutex
	written []kafka.Message
	err     error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type funcHandler struct {
	topic string
	fn    func(context.Context, []byte) error
}

func (h funcHandler) Topic() string { return h.topic }

func (h funcHandler) Handle(ctx context.Context, b []byte) error { return h.fn(ctx, b) }
