package gatehouse

import (
	"strconv"
	"strings"

	"github.com/xraph/gatehouse/entitlement"
	"github.com/xraph/gatehouse/permission"
)

// AccessRequest describes a protected capability. Any subset of the
// three requirement kinds may be set; an enforcement point that layers
// several gets them evaluated in precedence order (role, then
// permission, then feature) with a deny or pending short-circuiting the
// rest.
type AccessRequest struct {
	// Role, when non-empty, requires the effective role class to match.
	Role RoleClass `json:"role,omitempty"`

	// Permission, when non-empty, requires the grant for sub-user
	// identities. Non-sub-users pass unconditionally: the matrix
	// narrows sub-user access only.
	Permission permission.Key `json:"permission,omitempty"`

	// Feature, when non-empty, requires a plan entitlement.
	Feature entitlement.Feature `json:"feature,omitempty"`

	// ReadOnlyOK marks the capability itself as read-only, so a
	// read-only entitlement level is a full allow.
	ReadOnlyOK bool `json:"read_only_ok,omitempty"`

	// AllowDegraded lets a read-only entitlement degrade the
	// capability instead of denying it. It never rescues LevelNone.
	AllowDegraded bool `json:"allow_degraded,omitempty"`
}

// String renders the request compactly for logs and audit entries.
func (r AccessRequest) String() string {
	parts := make([]string, 0, 3)
	if r.Role != "" {
		parts = append(parts, "role="+string(r.Role))
	}
	if r.Permission != "" {
		parts = append(parts, "permission="+string(r.Permission))
	}
	if r.Feature != "" {
		parts = append(parts, "feature="+string(r.Feature))
	}
	if len(parts) == 0 {
		return "unconstrained"
	}
	return strings.Join(parts, ",")
}

// Snapshot is a consistent view of one session's resolver state, taken
// under the session lock. Decide operates on snapshots only, so a
// decision can never observe a half-updated overlay.
type Snapshot struct {
	Identity   EffectiveIdentity
	Generation uint64

	// RealRole is the resolved role of the authenticated principal.
	// Equal to Role unless an overlay is active, in which case it is
	// the admin's role recorded at overlay start.
	RealRole RoleClass

	Role      RoleClass
	RoleState LoadingState

	Permissions     permission.Set
	PermissionState LoadingState

	Plan             *entitlement.Plan
	EntitlementState LoadingState
}

// IdentityKey keys caches and audit correlation. It changes on every
// identity transition, so stale results for a superseded identity can
// never satisfy a later lookup.
func (s Snapshot) IdentityKey() string {
	return s.Identity.Principal.ID + "#" + strconv.FormatUint(s.Generation, 10)
}

// Decide is the pure access-decision function. It composes the four
// policies over a snapshot and emits exactly one of allow, deny,
// degraded, or pending. It has no error channel: upstream failures
// arrive as Failed loading states and settle to deny-unverified.
func Decide(snap Snapshot, req AccessRequest) AccessDecision {
	// Defense in depth: an overlay recorded without a verified admin
	// grants nothing, regardless of what the target would be allowed.
	if snap.Identity.Impersonating && snap.RealRole != RoleAdmin {
		return deny(CodeDenyUnverified, "impersonation by non-admin")
	}

	// Role gate. Evaluated first: cheapest, most certain, and a role
	// deny must not leak feature availability to unauthorized roles.
	if req.Role != "" {
		switch snap.RoleState {
		case StatePending:
			return pending()
		case StateFailed:
			return deny(CodeDenyUnverified, "unable to verify access")
		}
		if snap.Role != req.Role {
			return deny(CodeDenyRole, "role mismatch")
		}
	}

	// Permission gate. Applies to sub-users only, so the role must be
	// known before the matrix can be consulted at all.
	if req.Permission != "" {
		switch snap.RoleState {
		case StatePending:
			return pending()
		case StateFailed:
			return deny(CodeDenyUnverified, "unable to verify access")
		}
		if snap.Role == RoleSubUser {
			switch snap.PermissionState {
			case StatePending:
				return pending()
			case StateFailed:
				return deny(CodeDenyUnverified, "unable to verify access")
			}
			if !snap.Permissions.Granted(req.Permission) {
				return deny(CodeDenyPermission, "permission not granted")
			}
		}
	}

	// Feature gate.
	degraded := false
	if req.Feature != "" {
		switch snap.EntitlementState {
		case StatePending:
			return pending()
		case StateFailed:
			return deny(CodeDenyUnverified, "unable to verify access")
		}
		switch snap.Plan.Level(req.Feature) {
		case entitlement.LevelFull:
			// Unrestricted.
		case entitlement.LevelReadOnly:
			if !req.ReadOnlyOK {
				if !req.AllowDegraded {
					return deny(CodeDenyFullPlanRequired, "requires full plan")
				}
				degraded = true
			}
		default:
			return deny(CodeDenyNotEntitled, "feature not entitled")
		}
	}

	if degraded {
		return AccessDecision{
			Outcome: OutcomeDegraded,
			Code:    CodeDegradedReadOnly,
			Reason:  "plan grants read-only access",
		}
	}
	return AccessDecision{Outcome: OutcomeAllow, Code: CodeAllow}
}

func deny(code Code, reason string) AccessDecision {
	return AccessDecision{Outcome: OutcomeDeny, Code: code, Reason: reason}
}

func pending() AccessDecision {
	return AccessDecision{Outcome: OutcomePending, Code: CodePending}
}
