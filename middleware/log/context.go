package logger

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

// TraceIDKey is the context key and the log field name of the trace id.
const TraceIDKey contextKey = "trace_id"

// WithTraceID stores traceID in ctx, generating a UUID when it is empty.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		traceID = NewTraceID()
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID returns "" when ctx carries no trace id.
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// EnsureTraceID keeps an existing trace id and adds one otherwise.
func EnsureTraceID(ctx context.Context) context.Context {
	if GetTraceID(ctx) != "" {
		return ctx
	}
	return WithTraceID(ctx, "")
}

func NewTraceID() string {
	return uuid.New().String()
}
