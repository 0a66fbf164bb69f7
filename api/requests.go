package api

// ──────────────────────────────────────────────────
// Check requests
// ──────────────────────────────────────────────────

// CheckRequest is the request body for an access check.
type CheckRequest struct {
	UserID        string `json:"user_id" description:"User whose session is checked"`
	Role          string `json:"role,omitempty" description:"Required role class (tenant, landlord, sub_user, admin)"`
	Permission    string `json:"permission,omitempty" description:"Required sub-user permission key"`
	Feature       string `json:"feature,omitempty" description:"Required plan feature"`
	ReadOnlyOK    bool   `json:"read_only_ok,omitempty" description:"Capability is read-only, so a read-only entitlement fully allows it"`
	AllowDegraded bool   `json:"allow_degraded,omitempty" description:"Let a read-only entitlement degrade instead of deny"`
}

// BatchCheckRequest contains multiple checks.
type BatchCheckRequest struct {
	Checks []CheckRequest `json:"checks" description:"List of access checks"`
}

// ──────────────────────────────────────────────────
// Session requests
// ──────────────────────────────────────────────────

// BindSessionRequest is the body for binding an authenticated principal
// to a session.
type BindSessionRequest struct {
	UserID    string `json:"user_id" description:"Authenticated user ID"`
	RoleClaim string `json:"role_claim,omitempty" description:"Role claim from the identity source (tenant, landlord, admin)"`
	PlanID    string `json:"plan_id,omitempty" description:"Plan slug claimed by the identity source"`
}

// GetSessionRequest is the path parameter for session operations.
type GetSessionRequest struct {
	UserID string `path:"userId" description:"User ID"`
}

// ──────────────────────────────────────────────────
// Impersonation requests
// ──────────────────────────────────────────────────

// StartImpersonationRequest is the body for starting an impersonation
// overlay on an admin's session.
type StartImpersonationRequest struct {
	AdminID         string `json:"admin_id" description:"Admin whose session takes the overlay"`
	TargetID        string `json:"target_id" description:"User to impersonate"`
	TargetRoleClaim string `json:"target_role_claim,omitempty" description:"Target's role claim"`
	TargetPlanID    string `json:"target_plan_id,omitempty" description:"Target's plan slug"`
}

// StopImpersonationRequest is the body for ending an impersonation
// overlay.
type StopImpersonationRequest struct {
	AdminID string `json:"admin_id" description:"Admin whose overlay ends"`
}

// ──────────────────────────────────────────────────
// Membership requests
// ──────────────────────────────────────────────────

// CreateMembershipRequest is the body for creating a sub-user
// membership.
type CreateMembershipRequest struct {
	AccountID string `json:"account_id" description:"Owning landlord account"`
	UserID    string `json:"user_id" description:"Delegated user"`
	Label     string `json:"label,omitempty" description:"Display label (e.g. bookkeeper)"`
}

// UpdateMembershipRequest is the body for updating a membership.
type UpdateMembershipRequest struct {
	Label     *string `json:"label,omitempty" description:"Display label"`
	Suspended *bool   `json:"suspended,omitempty" description:"Suspension flag"`
}

// GetMembershipRequest is the path parameter for membership operations.
type GetMembershipRequest struct {
	MembershipID string `path:"membershipId" description:"Membership ID"`
}

// ListMembershipsRequest holds query parameters for listing
// memberships.
type ListMembershipsRequest struct {
	AccountID string `query:"account_id" description:"Filter by owning account"`
	UserID    string `query:"user_id" description:"Filter by delegated user"`
	Suspended *bool  `query:"suspended" description:"Filter by suspension state"`
	Limit     int    `query:"limit" description:"Maximum results (default: 50)"`
	Offset    int    `query:"offset" description:"Results to skip"`
}

// ──────────────────────────────────────────────────
// Grant requests
// ──────────────────────────────────────────────────

// SetGrantRequest is the body for writing a permission grant. Writing
// the same (user, key) pair again replaces the previous row.
type SetGrantRequest struct {
	AccountID string `json:"account_id" description:"Owning landlord account"`
	UserID    string `json:"user_id" description:"Sub-user the grant applies to"`
	Key       string `json:"key" description:"Permission key"`
	Granted   bool   `json:"granted" description:"Grant or revoke"`
}

// GetGrantRequest is the path parameter for grant operations.
type GetGrantRequest struct {
	GrantID string `path:"grantId" description:"Grant ID"`
}

// ListGrantsRequest holds query parameters for listing grants.
type ListGrantsRequest struct {
	AccountID string `query:"account_id" description:"Filter by owning account"`
	UserID    string `query:"user_id" description:"Filter by sub-user"`
	Key       string `query:"key" description:"Filter by permission key"`
	Limit     int    `query:"limit" description:"Maximum results (default: 50)"`
	Offset    int    `query:"offset" description:"Results to skip"`
}

// GetUserPermissionsRequest is the path parameter for the effective
// permission set lookup.
type GetUserPermissionsRequest struct {
	UserID string `path:"userId" description:"Sub-user ID"`
}

// ──────────────────────────────────────────────────
// Plan requests
// ──────────────────────────────────────────────────

// CreatePlanRequest is the body for creating a plan.
type CreatePlanRequest struct {
	Slug     string            `json:"slug" description:"URL-safe plan slug"`
	Name     string            `json:"name" description:"Display name"`
	Features map[string]string `json:"features,omitempty" description:"Feature levels (none, read_only, full) by feature key"`
}

// UpdatePlanRequest is the body for updating a plan.
type UpdatePlanRequest struct {
	Name     string            `json:"name,omitempty" description:"Display name"`
	Features map[string]string `json:"features,omitempty" description:"Replacement feature table"`
}

// GetPlanRequest is the path parameter for plan operations.
type GetPlanRequest struct {
	PlanID string `path:"planId" description:"Plan ID"`
}

// ListPlansRequest holds query parameters for listing plans.
type ListPlansRequest struct {
	Slug   string `query:"slug" description:"Filter by slug"`
	Search string `query:"search" description:"Search by name"`
	Limit  int    `query:"limit" description:"Maximum results (default: 50)"`
	Offset int    `query:"offset" description:"Results to skip"`
}

// SetSubscriptionRequest is the body for assigning a user's
// subscription. Re-assigning replaces the user's previous plan.
type SetSubscriptionRequest struct {
	UserID string `json:"user_id" description:"Subscribing user"`
	PlanID string `json:"plan_id" description:"Plan ID"`
}

// GetSubscriptionRequest is the path parameter for subscription
// lookups.
type GetSubscriptionRequest struct {
	UserID string `path:"userId" description:"User ID"`
}

// ──────────────────────────────────────────────────
// Audit log requests
// ──────────────────────────────────────────────────

// ListAuditEntriesRequest holds query parameters for the audit log.
type ListAuditEntriesRequest struct {
	Kind     string `query:"kind" description:"Entry kind (decision, impersonation_start, impersonation_stop)"`
	ActorID  string `query:"actor_id" description:"Filter by acting user"`
	TargetID string `query:"target_id" description:"Filter by impersonation target"`
	Outcome  string `query:"outcome" description:"Filter by decision outcome"`
	After    string `query:"after" description:"RFC3339 lower bound"`
	Before   string `query:"before" description:"RFC3339 upper bound"`
	Limit    int    `query:"limit" description:"Maximum results (default: 50)"`
	Offset   int    `query:"offset" description:"Results to skip"`
}

// GetAuditEntryRequest is the path parameter for audit entry lookups.
type GetAuditEntryRequest struct {
	EntryID string `path:"entryId" description:"Audit entry ID"`
}

// PurgeAuditEntriesRequest is the body for purging old audit entries.
type PurgeAuditEntriesRequest struct {
	Before string `json:"before" description:"RFC3339 cutoff; entries older than this are removed"`
}
