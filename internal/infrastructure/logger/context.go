package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

const (
	loggerKey contextKey = "logger"

	// RequestIDKey carries the request ID assigned by the RequestID
	// middleware through the request context.
	RequestIDKey contextKey = "request_id"
	// AgentIDKey carries the authenticated agent's ID once the JWT
	// middleware has resolved the token claims.
	AgentIDKey contextKey = "agent_id"
)

// WithContext attaches logger to ctx so downstream code can recover the
// request-scoped logger with FromContext.
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the request-scoped logger, or a no-op logger when
// the context never passed through the access-log middleware.
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// WithRequestID stores requestID in ctx and returns the context together
// with a logger that stamps request_id on every entry.
func WithRequestID(ctx context.Context, logger *zap.Logger, requestID string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, RequestIDKey, requestID)
	enriched := logger.With(zap.String("request_id", requestID))
	return WithContext(ctx, enriched), enriched
}

// WithAgentID stores the authenticated agent's ID in ctx and returns the
// context together with a logger that stamps agent_id on every entry.
func WithAgentID(ctx context.Context, logger *zap.Logger, agentID string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, AgentIDKey, agentID)
	enriched := logger.With(zap.String("agent_id", agentID))
	return WithContext(ctx, enriched), enriched
}

// GetRequestID returns the request ID stored in ctx, if any.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetAgentID returns the authenticated agent's ID stored in ctx, if any.
func GetAgentID(ctx context.Context) string {
	if agentID, ok := ctx.Value(AgentIDKey).(string); ok {
		return agentID
	}
	return ""
}

// WithTraceContext stamps trace_id and span_id from the active span onto
// the logger so log lines correlate with exported spans. The logger is
// returned unchanged when no span is recording.
func WithTraceContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With(
		zap.String("trace_id", spanCtx.TraceID().String()),
		zap.String("span_id", spanCtx.SpanID().String()),
	)
}
