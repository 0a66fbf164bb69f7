package subuser

import (
	"context"

	"github.com/xraph/gatehouse/id"
)

// Store defines persistence operations for sub-user memberships.
type Store interface {
	// CreateMembership persists a new membership.
	CreateMembership(ctx context.Context, m *Membership) error

	// GetMembership retrieves a membership by ID.
	GetMembership(ctx context.Context, membershipID id.MembershipID) (*Membership, error)

	// GetMembershipByUser retrieves the membership for a user, if any.
	// Each user belongs to at most one account.
	GetMembershipByUser(ctx context.Context, userID string) (*Membership, error)

	// UpdateMembership persists changes to a membership.
	UpdateMembership(ctx context.Context, m *Membership) error

	// DeleteMembership removes a membership by ID.
	DeleteMembership(ctx context.Context, membershipID id.MembershipID) error

	// ListMemberships returns memberships matching the filter.
	ListMemberships(ctx context.Context, filter *ListFilter) ([]*Membership, error)

	// CountMemberships returns the number of memberships matching the
	// filter.
	CountMemberships(ctx context.Context, filter *ListFilter) (int64, error)
}
