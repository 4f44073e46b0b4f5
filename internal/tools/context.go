package tools

import "context"

type contextKey string

const requestIDKey contextKey = "request_id"

// WithRequestID adds the request ID to the context so handlers can tag
// their logs.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the request ID from the context.
// Returns "" if not set.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
