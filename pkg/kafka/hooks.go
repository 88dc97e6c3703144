package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ImpactRank/pkg/logger"
)

// ConsumerHook observes message handling. An error from BeforeHandle counts
// as a failed attempt and skips the handler.
type ConsumerHook interface {
	BeforeHandle(ctx context.Context, topic string, km kafka.Message) (context.Context, error)
	AfterHandle(ctx context.Context, topic string, km kafka.Message, err error)
	OnError(ctx context.Context, topic string, km kafka.Message, attempt int, err error)
}

type noopHook struct{}

func (noopHook) BeforeHandle(ctx context.Context, _ string, _ kafka.Message) (context.Context, error) {
	return ctx, nil
}
func (noopHook) AfterHandle(context.Context, string, kafka.Message, error) {}
func (noopHook) OnError(context.Context, string, kafka.Message, int, error) {}

// HookError classifies a failure raised around the handler, such as a panic.
type HookError struct {
	Code string
	Err  error
}

func (e *HookError) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// HookFuncs adapts plain functions to ConsumerHook. Nil fields are no-ops.
type HookFuncs struct {
	Before func(ctx context.Context, topic string, km kafka.Message) (context.Context, error)
	After  func(ctx context.Context, topic string, km kafka.Message, err error)
	Err    func(ctx context.Context, topic string, km kafka.Message, attempt int, err error)
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

func (h HookFuncs) OnError(ctx context.Context, topic string, km kafka.Message, attempt int, err error) {
	if h.Err != nil {
		h.Err(ctx, topic, km, attempt, err)
	}
}

// HookChain runs hooks in order for BeforeHandle and OnError and in reverse
// for AfterHandle. A panicking hook never takes the lane down: in
// BeforeHandle it becomes an ERR_PANIC error, elsewhere it is swallowed.
type HookChain []ConsumerHook

// NewHookChain drops nil hooks.
func NewHookChain(hooks ...ConsumerHook) HookChain {
	chain := make(HookChain, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			chain = append(chain, h)
		}
	}
	return chain
}

func (c HookChain) BeforeHandle(ctx context.Context, topic string, km kafka.Message) (context.Context, error) {
	for _, h := range c {
		next, err := safeBefore(h, ctx, topic, km)
		if err != nil {
			return ctx, err
		}
		ctx = next
	}
	return ctx, nil
}

func (c HookChain) AfterHandle(ctx context.Context, topic string, km kafka.Message, err error) {
	for i := len(c) - 1; i >= 0; i-- {
		h := c[i]
		swallow(func() { h.AfterHandle(ctx, topic, km, err) })
	}
}

func (c HookChain) OnError(ctx context.Context, topic string, km kafka.Message, attempt int, err error) {
	for _, h := range c {
		h := h
		swallow(func() { h.OnError(ctx, topic, km, attempt, err) })
	}
}

func safeBefore(h ConsumerHook, ctx context.Context, topic string, km kafka.Message) (next context.Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			next, err = ctx, &HookError{Code: "ERR_PANIC", Err: fmt.Errorf("hook panic: %v", r)}
		}
	}()
	return h.BeforeHandle(ctx, topic, km)
}

func swallow(fn func()) {
	defer func() { _ = recover() }()
	fn()
}

type ctxKey int

const (
	startKey ctxKey = iota
	traceKey
)

// TraceHeader is the message header carrying a correlation id.
const TraceHeader = "trace_id"

// TraceIDFromContext returns the id LoggingHook copied from TraceHeader.
func TraceIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(traceKey).(string)
	return v
}

func header(km kafka.Message, key string) string {
	for _, h := range km.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// LoggingHook puts the trace id on the context, logs failed attempts at
// Warn and successful messages slower than slow at Warn.
func LoggingHook(l *logger.Logger, slow time.Duration) ConsumerHook {
	return HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message) (context.Context, error) {
			ctx = context.WithValue(ctx, startKey, time.Now())
			if id := header(km, TraceHeader); id != "" {
				ctx = context.WithValue(ctx, traceKey, id)
			}
			return ctx, nil
		},
		After: func(ctx context.Context, topic string, km kafka.Message, err error) {
			start, ok := ctx.Value(startKey).(time.Time)
			if !ok || err != nil || slow <= 0 {
				return
			}
			if took := time.Since(start); took > slow {
				l.Warn("slow kafka message",
					logger.String("topic", topic),
					logger.Int("partition", km.Partition),
					logger.Int64("offset", km.Offset),
					logger.Duration("took", took))
			}
		},
		Err: func(ctx context.Context, topic string, km kafka.Message, attempt int, err error) {
			l.Warn("kafka message attempt failed",
				logger.String("topic", topic),
				logger.Int("partition", km.Partition),
				logger.Int64("offset", km.Offset),
				logger.Int("attempt", attempt),
				logger.String("trace_id", TraceIDFromContext(ctx)),
				logger.Error(err))
		},
	}
}
