package gatehouse

import "context"

type contextKey int

const (
	ctxKeyActorID contextKey = iota
	ctxKeyReadOnly
)

// WithActor returns a context carrying the authenticated user ID. Use
// this in standalone mode (without Forge).
func WithActor(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKeyActorID, userID)
}

func actorIDFromContext(ctx context.Context) string {
	v, ok := ctx.Value(ctxKeyActorID).(string)
	if !ok {
		return ""
	}
	return v
}

// WithReadOnly marks the request as degraded to read-only access.
// Callers embedding the engine set it when a decision is Degraded;
// downstream handlers must refuse writes under it.
func WithReadOnly(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKeyReadOnly, true)
}

// ReadOnlyFromContext reports whether the request was degraded to
// read-only access.
func ReadOnlyFromContext(ctx context.Context) bool {
	v, ok := ctx.Value(ctxKeyReadOnly).(bool)
	return ok && v
}
