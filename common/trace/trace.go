// Package trace provides exchange ID generation and context propagation so
// that every log line emitted while serving one HTTP exchange carries the
// same correlation ID.
package trace

import (
	"context"

	"github.com/google/uuid"
)

// traceKey is the unexported context key used to store the exchange ID.
type traceKey struct{}

// GenerateID returns a fresh exchange ID.
func GenerateID() string {
	return "x_" + uuid.NewString()
}

// WithTraceID returns a child context carrying the given exchange ID.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

// FromContext extracts the exchange ID from ctx, returning "" if absent.
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceKey{}).(string); ok {
		return v
	}
	return ""
}
