package observability

import (
	"context"
	"strings"
)

// CorrelationHeader carries the correlation id over HTTP and NATS.
const CorrelationHeader = "X-Correlation-ID"

type correlationIDKey struct{}

// WithCorrelationID returns ctx carrying id. Blank ids leave ctx unchanged.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// CorrelationID extracts the correlation id from ctx, if present.
func CorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return id
	}
	return ""
}
