package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"SentiTrader/pkg/logger"
)

// HeaderTraceID carries the correlation id across stages.
const HeaderTraceID = "trace_id"

// ConsumerHook defines lifecycle hooks around message handling.
// A non-nil error from BeforeHandle skips the handler and is treated as a handler failure.
type ConsumerHook interface {
	BeforeHandle(ctx context.Context, topic string, km kafka.Message) (context.Context, error)
	AfterHandle(ctx context.Context, topic string, km kafka.Message, err error)
	OnError(ctx context.Context, topic string, km kafka.Message, err error)
}

// NoopHook does nothing.
type NoopHook struct{}

func (NoopHook) BeforeHandle(ctx context.Context, _ string, _ kafka.Message) (context.Context, error) {
	return ctx, nil
}

func (NoopHook) AfterHandle(context.Context, string, kafka.Message, error) {}

func (NoopHook) OnError(context.Context, string, kafka.Message, error) {}

// HookFuncs adapts plain functions to ConsumerHook. Nil functions are no-ops.
type HookFuncs struct {
	Before func(context.Context, string, kafka.Message) (context.Context, error)
	After  func(context.Context, string, kafka.Message, error)
	Err    func(context.Context, string, kafka.Message, error)
}

func (h HookFuncs) BeforeHandle(ctx context.Context, topic string, km kafka.Message) (context.Context, error) {
	if h.Before == nil {
		return ctx, nil
	}
	return h.Before(ctx, topic, km)
}

func (h HookFuncs) AfterHandle(ctx context.Context, topic string, km kafka.Message, err error) {
	if h.After != nil {
		h.After(ctx, topic, km, err)
	}
}

func (h HookFuncs) OnError(ctx context.Context, topic string, km kafka.Message, err error) {
	if h.Err != nil {
		h.Err(ctx, topic, km, err)
	}
}

// HookChain runs hooks in order for BeforeHandle and in reverse for AfterHandle.
// A panicking hook is recovered and reported as an error.
type HookChain struct {
	hooks []ConsumerHook
}

func NewHookChain(hooks ...ConsumerHook) *HookChain {
	filtered := make([]ConsumerHook, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			filtered = append(filtered, h)
		}
	}
	return &HookChain{hooks: filtered}
}

func (c *HookChain) BeforeHandle(ctx context.Context, topic string, km kafka.Message) (context.Context, error) {
	cur := ctx
	for _, h := range c.hooks {
		next, err := safeBefore(h, cur, topic, km)
		if err != nil {
			return cur, err
		}
		cur = next
	}
	return cur, nil
}

func (c *HookChain) AfterHandle(ctx context.Context, topic string, km kafka.Message, err error) {
	for i := len(c.hooks) - 1; i >= 0; i-- {
		func(h ConsumerHook) {
			defer func() { _ = recover() }()
			h.AfterHandle(ctx, topic, km, err)
		}(c.hooks[i])
	}
}

func (c *HookChain) OnError(ctx context.Context, topic string, km kafka.Message, err error) {
	for _, h := range c.hooks {
		func(h ConsumerHook) {
			defer func() { _ = recover() }()
			h.OnError(ctx, topic, km, err)
		}(h)
	}
}

func safeBefore(h ConsumerHook, ctx context.Context, topic string, km kafka.Message) (next context.Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			next, err = ctx, fmt.Errorf("hook panic: %v", r)
		}
	}()
	return h.BeforeHandle(ctx, topic, km)
}

type ctxKey string

const (
	ctxStartTime ctxKey = "kafka_start_time"
	ctxTraceID   ctxKey = "kafka_trace_id"
)

// WithTraceID stores a trace id in ctx. Producers copy it into message headers.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxTraceID, traceID)
}

// TraceIDFrom returns the trace id stored in ctx, or "".
func TraceIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(ctxTraceID).(string)
	return v
}

// StartTimeFrom returns when handling of the current message began.
func StartTimeFrom(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(ctxStartTime).(time.Time)
	return t, ok
}

// ExtractTraceID reads the trace id header from a message.
func ExtractTraceID(msg kafka.Message) string {
	for _, h := range msg.Headers {
		if h.Key == HeaderTraceID && len(h.Value) > 0 {
			return string(h.Value)
		}
	}
	return ""
}

// TraceHook propagates the upstream trace id, minting one when absent.
func TraceHook() ConsumerHook {
	return HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message) (context.Context, error) {
			id := ExtractTraceID(km)
			if id == "" {
				id = uuid.NewString()
			}
			ctx = context.WithValue(ctx, ctxStartTime, time.Now())
			return WithTraceID(ctx, id), nil
		},
	}
}

// LoggingHook logs failed handling attempts with topic, partition, offset and trace id.
func LoggingHook(log *logger.Logger) ConsumerHook {
	return HookFuncs{
		Err: func(ctx context.Context, topic string, km kafka.Message, err error) {
			log.Warn("kafka handler failed",
				logger.String("topic", topic),
				logger.Int("partition", km.Partition),
				logger.Int64("offset", km.Offset),
				logger.String("trace_id", TraceIDFrom(ctx)),
				logger.Bool("permanent", IsPermanent(err)),
				logger.Error(err),
			)
		},
	}
}
