package gatehouse

import (
	"testing"

	"github.com/xraph/gatehouse/entitlement"
	"github.com/xraph/gatehouse/permission"
)

func readySnapshot(role RoleClass) Snapshot {
	return Snapshot{
		Identity:         EffectiveIdentity{Principal: Principal{ID: "u1"}},
		RealRole:         role,
		Role:             role,
		RoleState:        StateReady,
		PermissionState:  StateReady,
		EntitlementState: StateReady,
	}
}

func TestDecide_Unconstrained(t *testing.T) {
	dec := Decide(readySnapshot(RoleLandlord), AccessRequest{})
	if !dec.Allowed() || dec.Code != CodeAllow {
		t.Fatalf("expected allow for unconstrained request, got %s (%s)", dec.Outcome, dec.Code)
	}
}

func TestDecide_RoleGate(t *testing.T) {
	tests := []struct {
		name    string
		snap    Snapshot
		req     AccessRequest
		outcome Outcome
		code    Code
	}{
		{
			name:    "match allows",
			snap:    readySnapshot(RoleLandlord),
			req:     AccessRequest{Role: RoleLandlord},
			outcome: OutcomeAllow,
			code:    CodeAllow,
		},
		{
			name:    "mismatch denies",
			snap:    readySnapshot(RoleTenant),
			req:     AccessRequest{Role: RoleLandlord},
			outcome: OutcomeDeny,
			code:    CodeDenyRole,
		},
		{
			name: "pending role gates to pending",
			snap: func() Snapshot {
				s := readySnapshot(RoleUnknown)
				s.RoleState = StatePending
				return s
			}(),
			req:     AccessRequest{Role: RoleLandlord},
			outcome: OutcomePending,
			code:    CodePending,
		},
		{
			name: "failed role denies unverified",
			snap: func() Snapshot {
				s := readySnapshot(RoleUnknown)
				s.RoleState = StateFailed
				return s
			}(),
			req:     AccessRequest{Role: RoleLandlord},
			outcome: OutcomeDeny,
			code:    CodeDenyUnverified,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := Decide(tt.snap, tt.req)
			if dec.Outcome != tt.outcome || dec.Code != tt.code {
				t.Fatalf("got %s (%s), want %s (%s)", dec.Outcome, dec.Code, tt.outcome, tt.code)
			}
		})
	}
}

func TestDecide_PermissionGate(t *testing.T) {
	subUser := readySnapshot(RoleSubUser)
	subUser.Permissions = permission.Set{permission.KeyViewFinancials: true}

	dec := Decide(subUser, AccessRequest{Permission: permission.KeyViewFinancials})
	if !dec.Allowed() {
		t.Fatalf("expected allow for granted permission, got %s (%s)", dec.Outcome, dec.Code)
	}

	// A key absent from the set is a deny, same as an explicit false.
	dec = Decide(subUser, AccessRequest{Permission: permission.KeySendMessages})
	if dec.Code != CodeDenyPermission {
		t.Fatalf("expected deny_permission for absent key, got %s (%s)", dec.Outcome, dec.Code)
	}

	revoked := readySnapshot(RoleSubUser)
	revoked.Permissions = permission.Set{permission.KeySendMessages: false}
	dec = Decide(revoked, AccessRequest{Permission: permission.KeySendMessages})
	if dec.Code != CodeDenyPermission {
		t.Fatalf("expected deny_permission for revoked key, got %s (%s)", dec.Outcome, dec.Code)
	}

	// The matrix narrows sub-user access only: other roles pass.
	landlord := readySnapshot(RoleLandlord)
	dec = Decide(landlord, AccessRequest{Permission: permission.KeyViewFinancials})
	if !dec.Allowed() {
		t.Fatalf("expected landlord to bypass the matrix, got %s (%s)", dec.Outcome, dec.Code)
	}

	// An unsettled matrix gates sub-user decisions.
	pendingPerms := readySnapshot(RoleSubUser)
	pendingPerms.PermissionState = StatePending
	dec = Decide(pendingPerms, AccessRequest{Permission: permission.KeyViewFinancials})
	if dec.Outcome != OutcomePending {
		t.Fatalf("expected pending while matrix unresolved, got %s (%s)", dec.Outcome, dec.Code)
	}

	failedPerms := readySnapshot(RoleSubUser)
	failedPerms.PermissionState = StateFailed
	dec = Decide(failedPerms, AccessRequest{Permission: permission.KeyViewFinancials})
	if dec.Code != CodeDenyUnverified {
		t.Fatalf("expected deny_unverified for failed matrix, got %s (%s)", dec.Outcome, dec.Code)
	}

	// An unknown role cannot prove the matrix irrelevant.
	unknownRole := readySnapshot(RoleUnknown)
	unknownRole.RoleState = StatePending
	dec = Decide(unknownRole, AccessRequest{Permission: permission.KeyViewFinancials})
	if dec.Outcome != OutcomePending {
		t.Fatalf("expected pending while role unresolved, got %s (%s)", dec.Outcome, dec.Code)
	}
}

func TestDecide_FeatureGate(t *testing.T) {
	plan := &entitlement.Plan{
		Slug: "starter",
		Features: map[entitlement.Feature]entitlement.Level{
			entitlement.FeatureOnlinePayments:    entitlement.LevelFull,
			entitlement.FeatureAdvancedReporting: entitlement.LevelReadOnly,
		},
	}
	snap := readySnapshot(RoleLandlord)
	snap.Plan = plan

	tests := []struct {
		name    string
		req     AccessRequest
		outcome Outcome
		code    Code
	}{
		{
			name:    "full level allows",
			req:     AccessRequest{Feature: entitlement.FeatureOnlinePayments},
			outcome: OutcomeAllow,
			code:    CodeAllow,
		},
		{
			name:    "read-only level denies a write capability",
			req:     AccessRequest{Feature: entitlement.FeatureAdvancedReporting},
			outcome: OutcomeDeny,
			code:    CodeDenyFullPlanRequired,
		},
		{
			name:    "read-only level fully allows a read-only capability",
			req:     AccessRequest{Feature: entitlement.FeatureAdvancedReporting, ReadOnlyOK: true},
			outcome: OutcomeAllow,
			code:    CodeAllow,
		},
		{
			name:    "read-only level degrades when the capability accepts it",
			req:     AccessRequest{Feature: entitlement.FeatureAdvancedReporting, AllowDegraded: true},
			outcome: OutcomeDegraded,
			code:    CodeDegradedReadOnly,
		},
		{
			name:    "absent feature denies not entitled",
			req:     AccessRequest{Feature: entitlement.FeatureBulkMessaging},
			outcome: OutcomeDeny,
			code:    CodeDenyNotEntitled,
		},
		{
			name:    "degradation never rescues an absent feature",
			req:     AccessRequest{Feature: entitlement.FeatureBulkMessaging, AllowDegraded: true},
			outcome: OutcomeDeny,
			code:    CodeDenyNotEntitled,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := Decide(snap, tt.req)
			if dec.Outcome != tt.outcome || dec.Code != tt.code {
				t.Fatalf("got %s (%s), want %s (%s)", dec.Outcome, dec.Code, tt.outcome, tt.code)
			}
		})
	}
}

func TestDecide_NilPlanDeniesEveryFeature(t *testing.T) {
	snap := readySnapshot(RoleLandlord)
	dec := Decide(snap, AccessRequest{Feature: entitlement.FeatureAPIAccess})
	if dec.Code != CodeDenyNotEntitled {
		t.Fatalf("expected deny_not_entitled without a plan, got %s (%s)", dec.Outcome, dec.Code)
	}
}

func TestDecide_EntitlementStates(t *testing.T) {
	snap := readySnapshot(RoleLandlord)
	snap.EntitlementState = StatePending
	dec := Decide(snap, AccessRequest{Feature: entitlement.FeatureAPIAccess})
	if dec.Outcome != OutcomePending {
		t.Fatalf("expected pending while entitlements unresolved, got %s (%s)", dec.Outcome, dec.Code)
	}

	snap.EntitlementState = StateFailed
	dec = Decide(snap, AccessRequest{Feature: entitlement.FeatureAPIAccess})
	if dec.Code != CodeDenyUnverified {
		t.Fatalf("expected deny_unverified for failed entitlements, got %s (%s)", dec.Outcome, dec.Code)
	}
}

// A role deny must short-circuit the later gates: the decision reports
// the role mismatch, never the feature availability behind it.
func TestDecide_PrecedenceShortCircuit(t *testing.T) {
	snap := readySnapshot(RoleTenant)
	snap.EntitlementState = StatePending
	dec := Decide(snap, AccessRequest{
		Role:    RoleLandlord,
		Feature: entitlement.FeatureOnlinePayments,
	})
	if dec.Code != CodeDenyRole {
		t.Fatalf("expected role mismatch to win over pending entitlements, got %s (%s)", dec.Outcome, dec.Code)
	}

	// Same layering with a sub-user: the missing permission is reported
	// before the feature gate runs.
	sub := readySnapshot(RoleSubUser)
	sub.Permissions = permission.Set{}
	sub.EntitlementState = StateFailed
	dec = Decide(sub, AccessRequest{
		Permission: permission.KeyViewFinancials,
		Feature:    entitlement.FeatureAdvancedReporting,
	})
	if dec.Code != CodeDenyPermission {
		t.Fatalf("expected permission deny to win, got %s (%s)", dec.Outcome, dec.Code)
	}
}

// An overlay recorded without a verified admin grants nothing, even if
// every slot for the target says allow.
func TestDecide_NonAdminOverlayDenies(t *testing.T) {
	snap := readySnapshot(RoleLandlord)
	snap.Identity.Impersonating = true
	snap.Identity.AdminID = "u_admin"
	snap.RealRole = RoleLandlord
	dec := Decide(snap, AccessRequest{})
	if dec.Code != CodeDenyUnverified {
		t.Fatalf("expected deny_unverified for non-admin overlay, got %s (%s)", dec.Outcome, dec.Code)
	}

	snap.RealRole = RoleAdmin
	dec = Decide(snap, AccessRequest{})
	if !dec.Allowed() {
		t.Fatalf("expected allow for admin overlay, got %s (%s)", dec.Outcome, dec.Code)
	}
}

func TestAccessRequestString(t *testing.T) {
	if got := (AccessRequest{}).String(); got != "unconstrained" {
		t.Fatalf("got %q", got)
	}
	req := AccessRequest{
		Role:    RoleSubUser,
		Feature: entitlement.FeatureBulkMessaging,
	}
	if got := req.String(); got != "role=sub_user,feature=bulk_messaging" {
		t.Fatalf("got %q", got)
	}
}

func TestSnapshotIdentityKeyRotates(t *testing.T) {
	a := Snapshot{Identity: EffectiveIdentity{Principal: Principal{ID: "u1"}}, Generation: 1}
	b := Snapshot{Identity: EffectiveIdentity{Principal: Principal{ID: "u1"}}, Generation: 2}
	if a.IdentityKey() == b.IdentityKey() {
		t.Fatal("identity key must change across generations")
	}
}
