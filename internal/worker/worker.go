package worker

import (
	"context"
	"sync"
	"time"

	pkgkafka "SentiTrader/pkg/kafka"
	applogger "SentiTrader/pkg/logger"
)

// Worker is a long-lived pipeline stage. Run blocks until ctx is cancelled.
type Worker interface {
	Name() string
	Run(ctx context.Context) error
}

// BatchSource is the pull side of a stream; *pkgkafka.BatchReader implements it.
type BatchSource interface {
	ReadBatch(ctx context.Context, max int) ([]pkgkafka.Record, error)
	Commit(ctx context.Context, records []pkgkafka.Record) error
}

// readErrorBackoff is the pause after a failed stream read.
const readErrorBackoff = time.Second

// RunAll runs every worker in its own goroutine and waits for all of them to
// return. Stages are independent: one stage failing does not stop the others.
func RunAll(ctx context.Context, l *applogger.Logger, workers ...Worker) {
	if l == nil {
		l = applogger.NewNop()
	}
	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w Worker) {
			defer wg.Done()
			wl := l.With(applogger.String("stage", w.Name()))
			wl.Info("stage started")
			if err := w.Run(ctx); err != nil {
				wl.Error("stage stopped with error", applogger.Error(err))
				return
			}
			wl.Info("stage stopped")
		}(w)
	}
	wg.Wait()
}

// ConsumerWorker adapts the push consumer to the Worker lifecycle.
type ConsumerWorker struct {
	name        string
	consumer    *pkgkafka.Consumer
	stopTimeout time.Duration
}

func NewConsumerWorker(name string, consumer *pkgkafka.Consumer, stopTimeout time.Duration) *ConsumerWorker {
	if stopTimeout <= 0 {
		stopTimeout = 30 * time.Second
	}
	return &ConsumerWorker{name: name, consumer: consumer, stopTimeout: stopTimeout}
}

func (w *ConsumerWorker) Name() string { return w.name }

// Run starts the consumer and, once ctx is done, drains in-flight messages.
func (w *ConsumerWorker) Run(ctx context.Context) error {
	if err := w.consumer.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.stopTimeout)
	defer cancel()
	return w.consumer.Stop(stopCtx)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
