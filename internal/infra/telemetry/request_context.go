package telemetry

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type invocationContextKey struct{}

// InvocationMeta identifies one tool invocation across the manager and the remote bridge.
type InvocationMeta struct {
	RequestID string
	TraceID   string
	SpanID    string
}

func (m InvocationMeta) IsZero() bool {
	return m.RequestID == "" && m.TraceID == "" && m.SpanID == ""
}

func invocationMeta(ctx context.Context) (InvocationMeta, bool) {
	if ctx == nil {
		return InvocationMeta{}, false
	}
	meta, ok := ctx.Value(invocationContextKey{}).(InvocationMeta)
	return meta, ok && !meta.IsZero()
}

// RequestIDFromContext returns the invocation request id, if any.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	meta, ok := invocationMeta(ctx)
	if !ok || meta.RequestID == "" {
		return "", false
	}
	return meta.RequestID, true
}

func TraceSpanFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.IsValid() {
		return "", ""
	}
	return spanCtx.TraceID().String(), spanCtx.SpanID().String()
}

// WithInvocation returns ctx carrying invocation metadata, reusing the request
// id already present and generating one otherwise.
func WithInvocation(ctx context.Context) (context.Context, InvocationMeta) {
	if ctx == nil {
		ctx = context.Background()
	}
	requestID := ""
	if existing, ok := invocationMeta(ctx); ok {
		requestID = existing.RequestID
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}
	traceID, spanID := TraceSpanFromContext(ctx)
	meta := InvocationMeta{RequestID: requestID, TraceID: traceID, SpanID: spanID}
	return context.WithValue(ctx, invocationContextKey{}, meta), meta
}

func InvocationFields(meta InvocationMeta) []zap.Field {
	if meta.IsZero() {
		return nil
	}
	fields := make([]zap.Field, 0, 3)
	if meta.RequestID != "" {
		fields = append(fields, RequestIDField(meta.RequestID))
	}
	if meta.TraceID != "" {
		fields = append(fields, TraceIDField(meta.TraceID))
	}
	if meta.SpanID != "" {
		fields = append(fields, SpanIDField(meta.SpanID))
	}
	return fields
}

// LoggerWithInvocation decorates base with the invocation fields found in ctx.
func LoggerWithInvocation(ctx context.Context, base *zap.Logger) *zap.Logger {
	logger := base
	if logger == nil {
		logger = zap.NewNop()
	}
	meta, ok := invocationMeta(ctx)
	if !ok {
		return logger
	}
	return logger.With(InvocationFields(meta)...)
}
