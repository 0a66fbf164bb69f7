// Package permission defines the closed sub-user permission vocabulary,
// the fail-closed permission Set, and the Grant entity with its store
// interface.
//
// The matrix narrows sub-user access only. It never restricts tenants,
// landlords, or admins: for any role other than sub-user, permission
// checks pass unconditionally and the set is irrelevant.
package permission

import (
	"errors"
	"fmt"
	"time"

	"github.com/xraph/gatehouse/id"
)

// ErrGrantNotFound is returned when no grant row matches a lookup.
var ErrGrantNotFound = errors.New("permission: grant not found")

// Key names a sub-user permission. The vocabulary is closed: ad hoc
// string keys are rejected at the boundary via Validate.
type Key string

const (
	// KeyManageSubUsers allows inviting, editing, and removing other
	// sub-users on the account.
	KeyManageSubUsers Key = "manage_sub_users"

	// KeyViewFinancials allows viewing rent rolls, ledgers, and payouts.
	KeyViewFinancials Key = "view_financials"

	// KeyManageProperties allows creating and editing property records.
	KeyManageProperties Key = "manage_properties"

	// KeyManageTenants allows managing tenant profiles and leases.
	KeyManageTenants Key = "manage_tenants"

	// KeySendMessages allows sending messages to tenants.
	KeySendMessages Key = "send_messages"

	// KeyViewReports allows viewing generated reports.
	KeyViewReports Key = "view_reports"

	// KeyManageDocuments allows uploading and sharing documents.
	KeyManageDocuments Key = "manage_documents"

	// KeyManageMaintenance allows handling maintenance requests.
	KeyManageMaintenance Key = "manage_maintenance"
)

// Keys lists every permission in the closed vocabulary.
func Keys() []Key {
	return []Key{
		KeyManageSubUsers,
		KeyViewFinancials,
		KeyManageProperties,
		KeyManageTenants,
		KeySendMessages,
		KeyViewReports,
		KeyManageDocuments,
		KeyManageMaintenance,
	}
}

// Validate returns an error if k is not in the closed vocabulary.
func (k Key) Validate() error {
	for _, known := range Keys() {
		if k == known {
			return nil
		}
	}
	return fmt.Errorf("permission: unknown key %q", string(k))
}

// Set maps permission keys to grant booleans for one sub-user. An
// absent key is not granted; there is no implicit default-allow.
type Set map[Key]bool

// Granted reports whether k is explicitly granted. Absent means false.
func (s Set) Granted(k Key) bool { return s != nil && s[k] }

// Clone returns an independent copy of the set.
func (s Set) Clone() Set {
	if s == nil {
		return nil
	}
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Grant is a stored permission row for a sub-user.
type Grant struct {
	ID        id.GrantID `json:"id" db:"id"`
	AccountID string     `json:"account_id" db:"account_id"`
	UserID    string     `json:"user_id" db:"user_id"`
	Key       Key        `json:"key" db:"key"`
	Granted   bool       `json:"granted" db:"granted"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// ListFilter contains filters for listing grants.
type ListFilter struct {
	AccountID string `json:"account_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Key       Key    `json:"key,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}
