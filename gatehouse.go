// Package gatehouse is the access-control and feature-entitlement core
// for a multi-tenant property-management platform.
//
// Gatehouse composes four policies (role classification, the sub-user
// permission matrix, plan-based feature entitlement, and the admin
// impersonation overlay) into a single decision per protected
// capability. Decisions fail closed: an unresolved lookup or an absent
// grant is never treated as an allow.
//
//	eng, err := gatehouse.NewEngine(
//	    gatehouse.WithStore(memStore),
//	)
//	sess, err := eng.Sessions().Bind(ctx, gatehouse.Principal{
//	    ID:        "user_123",
//	    RoleClaim: "landlord",
//	    PlanID:    "plan_pro",
//	})
//	dec := eng.Check(ctx, sess, gatehouse.AccessRequest{
//	    Feature: entitlement.FeatureBulkMessaging,
//	})
package gatehouse

import "fmt"

// RoleClass is the coarse classification of an effective identity.
type RoleClass string

const (
	// RoleTenant is a renter with access to their own lease data.
	RoleTenant RoleClass = "tenant"

	// RoleLandlord is a primary account holder managing properties.
	RoleLandlord RoleClass = "landlord"

	// RoleSubUser is a delegated operator under a landlord account,
	// constrained by the sub-user permission matrix.
	RoleSubUser RoleClass = "sub_user"

	// RoleAdmin is a platform administrator.
	RoleAdmin RoleClass = "admin"

	// RoleUnknown means classification has not resolved yet, or the
	// lookup failed. Unknown is never conflated with a deny: it gates
	// decisions to Pending (or deny-unverified once settled).
	RoleUnknown RoleClass = "unknown"
)

// Validate reports whether c is a role class a request may require.
// Unknown is resolver output, never a requirement.
func (c RoleClass) Validate() error {
	switch c {
	case RoleTenant, RoleLandlord, RoleSubUser, RoleAdmin:
		return nil
	}
	return fmt.Errorf("invalid role class %q", c)
}

// Principal is an authenticated user as supplied by the identity
// source. It is read-only input to gatehouse.
type Principal struct {
	ID        string `json:"id"`
	RoleClaim string `json:"role_claim"` // "tenant", "landlord", "admin", or ""
	PlanID    string `json:"plan_id,omitempty"`
}

// IsZero reports whether the principal is the unauthenticated zero value.
func (p Principal) IsZero() bool { return p.ID == "" }

// EffectiveIdentity is the identity actually being authorized. It equals
// the authenticated principal unless an impersonation overlay is active,
// in which case it is the overlay target and the real admin identity is
// retained for audit and visibility.
type EffectiveIdentity struct {
	Principal     Principal `json:"principal"`
	Impersonating bool      `json:"impersonating"`
	AdminID       string    `json:"admin_id,omitempty"`
}

// LoadingState is the tri-state resolution status of a resolver slot.
// "Not yet known" is a first-class value, distinct from both grant and
// denial.
type LoadingState string

const (
	// StatePending means the lookup has not completed.
	StatePending LoadingState = "pending"

	// StateReady means the lookup completed and the value is usable.
	StateReady LoadingState = "ready"

	// StateFailed means the lookup errored or timed out. Failed gates
	// identically to a deny for allow purposes, but stays
	// distinguishable for diagnostics.
	StateFailed LoadingState = "failed"
)

// Settled reports whether the slot left the pending state.
func (s LoadingState) Settled() bool { return s == StateReady || s == StateFailed }

// Outcome is the shape of an access decision. Enforcement points must
// handle all four.
type Outcome string

const (
	// OutcomeAllow permits the capability.
	OutcomeAllow Outcome = "allow"

	// OutcomeDeny refuses the capability; the decision carries a reason.
	OutcomeDeny Outcome = "deny"

	// OutcomeDegraded permits a read-only variant of the capability.
	OutcomeDegraded Outcome = "degraded"

	// OutcomePending means a required resolver has not settled. The
	// enforcement point renders a neutral loading affordance, never a
	// premature allow or deny.
	OutcomePending Outcome = "pending"
)

// Code is the fine-grained decision code behind an outcome.
type Code string

const (
	// CodeAllow means every layered requirement passed.
	CodeAllow Code = "allow"

	// CodePending means a required resolver is still pending.
	CodePending Code = "pending"

	// CodeDenyRole means the effective role does not match the
	// required role.
	CodeDenyRole Code = "deny_role_mismatch"

	// CodeDenyPermission means the sub-user matrix does not grant the
	// requested permission.
	CodeDenyPermission Code = "deny_permission"

	// CodeDenyNotEntitled means the plan lacks the feature entirely.
	CodeDenyNotEntitled Code = "deny_not_entitled"

	// CodeDenyFullPlanRequired means the plan grants only a read-only
	// variant and the capability accepts neither read-only nor
	// degraded operation.
	CodeDenyFullPlanRequired Code = "deny_full_plan_required"

	// CodeDenyUnverified means a required lookup failed, so access
	// could not be verified. Never a silent allow.
	CodeDenyUnverified Code = "deny_unverified"

	// CodeDegradedReadOnly means the capability proceeds read-only.
	CodeDegradedReadOnly Code = "degraded_read_only"
)

// AccessDecision is the engine's sole output. It has no error channel:
// upstream failures surface as deny-unverified, transient resolution as
// pending.
type AccessDecision struct {
	Outcome    Outcome `json:"outcome"`
	Code       Code    `json:"code"`
	Reason     string  `json:"reason,omitempty"`
	EvalTimeNs int64   `json:"eval_time_ns"`
}

// Allowed reports whether the capability may proceed at full access.
func (d AccessDecision) Allowed() bool { return d.Outcome == OutcomeAllow }

// Settled reports whether the decision is final for the current
// identity (anything but pending).
func (d AccessDecision) Settled() bool { return d.Outcome != OutcomePending }
