package gatehouse

import "context"

// Cache provides caching for settled access decisions. Keys are
// identity keys (see Snapshot.IdentityKey), which rotate on every
// identity change, so a cache can never replay a decision made for a
// superseded identity.
type Cache interface {
	// Get returns a cached decision, if available.
	Get(ctx context.Context, identityKey string, req AccessRequest) (AccessDecision, bool)

	// Set stores a settled decision in the cache.
	Set(ctx context.Context, identityKey string, req AccessRequest, dec AccessDecision)

	// InvalidateIdentity removes all cached decisions for an identity key.
	InvalidateIdentity(ctx context.Context, identityKey string)
}
