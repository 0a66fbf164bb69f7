// Package subuser defines the sub-user Membership entity and its store
// interface. A membership places a user under a landlord account; its
// existence is what classifies the user as a sub-user during identity
// resolution.
package subuser

import (
	"errors"
	"time"

	"github.com/xraph/gatehouse/id"
)

// ErrNotFound is returned when no membership matches a lookup. Absence
// of a membership is an ordinary answer (the user is not a sub-user),
// not a resolution failure.
var ErrNotFound = errors.New("subuser: membership not found")

// ErrDuplicate is returned when creating a membership for a user who
// already has one. A user belongs to at most one account.
var ErrDuplicate = errors.New("subuser: user already has a membership")

// Membership links a delegated user to the landlord account that owns
// them.
type Membership struct {
	ID        id.MembershipID `json:"id" db:"id"`
	AccountID string          `json:"account_id" db:"account_id"`
	UserID    string          `json:"user_id" db:"user_id"`
	Label     string          `json:"label,omitempty" db:"label"`
	Suspended bool            `json:"suspended" db:"suspended"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// ListFilter contains filters for listing memberships.
type ListFilter struct {
	AccountID string `json:"account_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Suspended *bool  `json:"suspended,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}
