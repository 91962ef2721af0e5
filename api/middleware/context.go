package middleware

import "context"

type contextKey string

const ctxNodeID contextKey = "node_id"

// NodeIDFromContext returns the token subject seeded by TokenAuth.
func NodeIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxNodeID).(string); ok {
		return v
	}
	return ""
}

// WithNodeID injects the authenticated caller into the context.
func WithNodeID(ctx context.Context, nodeID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxNodeID, nodeID)
}
