// Package middleware holds the HTTP middleware shared by the mediation API.
package middleware

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type loggerKey struct{}

func traceFields(sc trace.SpanContext) []zap.Field {
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}

// ContextWithLogger stores logger in ctx.
func ContextWithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// WithTraceLogger returns middleware that stores a logger tagged with the
// active trace and span IDs in the request context.
func WithTraceLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sc := trace.SpanFromContext(r.Context()).SpanContext(); sc.IsValid() {
				r = r.WithContext(ContextWithLogger(r.Context(), logger.With(traceFields(sc)...)))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LoggerFromContext returns the logger stored in ctx. Without one, fallback is
// returned, tagged with trace IDs when ctx carries a valid span.
func LoggerFromContext(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return logger
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		return fallback.With(traceFields(sc)...)
	}
	return fallback
}

// LoggerFromRequest is LoggerFromContext for r's context.
func LoggerFromRequest(r *http.Request, fallback *zap.Logger) *zap.Logger {
	return LoggerFromContext(r.Context(), fallback)
}
