package permission

import (
	"context"

	"github.com/xraph/gatehouse/id"
)

// Store defines persistence operations for sub-user permission grants.
type Store interface {
	// SetGrant creates or updates the grant row for (userID, key).
	SetGrant(ctx context.Context, g *Grant) error

	// GetGrant retrieves a grant by ID.
	GetGrant(ctx context.Context, grantID id.GrantID) (*Grant, error)

	// DeleteGrant removes a grant by ID.
	DeleteGrant(ctx context.Context, grantID id.GrantID) error

	// ListGrants returns grants matching the filter.
	ListGrants(ctx context.Context, filter *ListFilter) ([]*Grant, error)

	// GetSetForUser assembles the permission set for a user from their
	// grant rows. Users without rows get an empty set, which denies
	// every key.
	GetSetForUser(ctx context.Context, userID string) (Set, error)

	// DeleteGrantsByUser removes all grant rows for a user.
	DeleteGrantsByUser(ctx context.Context, userID string) error

	// DeleteGrantsByAccount removes all grant rows for an account.
	DeleteGrantsByAccount(ctx context.Context, accountID string) error
}
