package gatehouse

import (
	"errors"

	"github.com/xraph/gatehouse/auditlog"
	"github.com/xraph/gatehouse/entitlement"
	"github.com/xraph/gatehouse/permission"
	"github.com/xraph/gatehouse/subuser"
)

var (
	// ErrAccessDenied is returned by Enforce when a decision denies.
	ErrAccessDenied = errors.New("gatehouse: access denied")

	// ErrAccessPending is returned by Enforce while a required resolver
	// has not settled.
	ErrAccessPending = errors.New("gatehouse: access pending")

	// ErrNotAdmin is returned when impersonation is started by a caller
	// whose real identity is not a ready admin.
	ErrNotAdmin = errors.New("gatehouse: impersonation requires admin")

	// ErrNotImpersonating is returned by overlay queries when no
	// overlay is active.
	ErrNotImpersonating = errors.New("gatehouse: no active impersonation")

	// ErrSessionClosed is returned when operating on a closed session.
	ErrSessionClosed = errors.New("gatehouse: session closed")

	// ErrUnauthenticated is returned when binding a session without a
	// principal.
	ErrUnauthenticated = errors.New("gatehouse: unauthenticated principal")
)

// Re-exported store sentinels, so callers holding only the root package
// can classify lookup errors.
var (
	ErrMembershipNotFound   = subuser.ErrNotFound
	ErrDuplicateMembership  = subuser.ErrDuplicate
	ErrGrantNotFound        = permission.ErrGrantNotFound
	ErrPlanNotFound         = entitlement.ErrPlanNotFound
	ErrSubscriptionNotFound = entitlement.ErrSubscriptionNotFound
	ErrAuditEntryNotFound   = auditlog.ErrNotFound
)
