package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

const (
	loggerKey    contextKey = "logger"
	requestIDKey contextKey = "request_id"
	actorIDKey   contextKey = "actor_id"
)

// WithContext returns a new context carrying logger
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the context logger or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// WithRequestID stores the request ID and returns the enriched logger
func WithRequestID(ctx context.Context, logger *zap.Logger, requestID string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, requestIDKey, requestID)
	enriched := logger.With(zap.String("request_id", requestID))
	return WithContext(ctx, enriched), enriched
}

// WithActorID stores the authenticated actor and returns the enriched logger
func WithActorID(ctx context.Context, logger *zap.Logger, actorID string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, actorIDKey, actorID)
	enriched := logger.With(zap.String("actor_id", actorID))
	return WithContext(ctx, enriched), enriched
}

// GetRequestID returns the request ID stored in ctx
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// GetActorID returns the actor ID stored in ctx
func GetActorID(ctx context.Context) string {
	id, _ := ctx.Value(actorIDKey).(string)
	return id
}

// GetTraceID returns the active trace ID, or empty
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}

// WithTraceContext adds trace_id and span_id when ctx carries a valid span
func WithTraceContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return logger
	}
	return logger.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}

// L returns the context logger with the active span's trace fields. Request
// and actor fields are attached when the logger is stored.
//
//	logger.L(ctx).Warn("reservation rejected", zap.String("order_id", id))
func L(ctx context.Context) *zap.Logger {
	return WithTraceContext(ctx, FromContext(ctx))
}
