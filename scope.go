package gatehouse

import (
	"context"

	"github.com/xraph/forge"
)

// ActorFromContext resolves the authenticated user ID for the request.
// Prefers the Forge user (from Authsome); falls back to the standalone
// actor context set via WithActor.
func ActorFromContext(ctx context.Context) string {
	if userID := forge.UserIDFromContext(ctx); userID != "" {
		return userID
	}
	return actorIDFromContext(ctx)
}
