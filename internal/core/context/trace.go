package context

import (
	"context"

	"github.com/google/uuid"
)

// TraceContext correlates log lines of one logical operation.
type TraceContext struct {
	TraceID   string
	Operation string
}

type traceContextKey struct{}

// WithTrace adds TraceContext to context.
func WithTrace(ctx context.Context, trace *TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, trace)
}

// GetTrace returns TraceContext from context.
func GetTrace(ctx context.Context) *TraceContext {
	if v, ok := ctx.Value(traceContextKey{}).(*TraceContext); ok {
		return v
	}
	return nil
}

// GetTraceID returns trace ID from context or empty string.
func GetTraceID(ctx context.Context) string {
	if t := GetTrace(ctx); t != nil {
		return t.TraceID
	}
	return ""
}

// EnsureTrace returns ctx unchanged if it already carries a trace,
// otherwise a child context with a fresh trace for operation.
func EnsureTrace(ctx context.Context, operation string) context.Context {
	if GetTrace(ctx) != nil {
		return ctx
	}
	return WithTrace(ctx, &TraceContext{
		TraceID:   uuid.New().String(),
		Operation: operation,
	})
}
