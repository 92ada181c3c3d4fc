// Package requestid attaches a unique ID to each inbound HTTP request
// handled by cmd/tokenmanagerdemo, for correlating log lines, adapted
// from the example pack's platform-agent requestid package.
package requestid

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey struct{}

// WithRequestID returns a copy of ctx carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the request ID ctx carries, or "" if none.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// New generates a fresh request ID.
func New() string {
	return uuid.New().String()
}
