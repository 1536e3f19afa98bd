package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type batchCtxKey struct{}
type fileCtxKey struct{}
type requestCtxKey struct{}
type loggerCtxKey struct{}

// ContextFields extracts correlation data from ctx.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}

	if id := BatchIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("batch.id", id))
	}
	if path := FilePathFromContext(ctx); path != "" {
		fields = append(fields, zap.String("file.path", path))
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request.id", id))
	}
	return fields
}

// WithBatchID adds a batch id to ctx.
func WithBatchID(ctx context.Context, batchID string) context.Context {
	return context.WithValue(ctx, batchCtxKey{}, batchID)
}

// BatchIDFromContext returns the batch id, or "".
func BatchIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(batchCtxKey{}).(string)
	return id
}

// WithFilePath adds the file being parsed to ctx.
func WithFilePath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, fileCtxKey{}, path)
}

// FilePathFromContext returns the file path, or "".
func FilePathFromContext(ctx context.Context) string {
	path, _ := ctx.Value(fileCtxKey{}).(string)
	return path
}

// WithRequestID adds an HTTP request id to ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext returns the request id, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestCtxKey{}).(string)
	return id
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext returns the logger stored in ctx, or a nop logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
