package common

import (
	"context"
	"time"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyTickID   contextKey = "tick_id"
	ContextKeyWorkerID contextKey = "worker_id"
)

// WithTickID tags the context with the scheduler tick sequence number.
func WithTickID(ctx context.Context, tick uint64) context.Context {
	return context.WithValue(ctx, ContextKeyTickID, tick)
}

// TickIDFromContext returns the tick sequence number, or 0 outside a tick.
func TickIDFromContext(ctx context.Context) uint64 {
	if tick, ok := ctx.Value(ContextKeyTickID).(uint64); ok {
		return tick
	}
	return 0
}

// WithWorkerID adds the worker process identity to the context
func WithWorkerID(ctx context.Context, workerID string) context.Context {
	return context.WithValue(ctx, ContextKeyWorkerID, workerID)
}

// WorkerIDFromContext extracts the worker identity from context
func WorkerIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ContextKeyWorkerID).(string); ok {
		return id
	}
	return ""
}

// WithTimeout creates a context with the specified timeout.
// A non-positive timeout returns the parent with a no-op cancel.
func WithTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return parent, func() {}
	}
	return context.WithTimeout(parent, timeout)
}
