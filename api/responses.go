package api

// DecisionResponse is the response for an access check.
type DecisionResponse struct {
	Outcome    string `json:"outcome" description:"allow, deny, degraded, or pending"`
	Code       string `json:"code" description:"Fine-grained decision code"`
	Reason     string `json:"reason,omitempty" description:"Human-readable reason"`
	EvalTimeNs int64  `json:"eval_time_ns" description:"Evaluation time in nanoseconds"`
}

// BatchCheckResponse contains results for multiple checks.
type BatchCheckResponse struct {
	Results []DecisionResponse `json:"results" description:"Check results in order"`
}

// SessionResponse describes a session's current resolver state.
type SessionResponse struct {
	UserID        string `json:"user_id" description:"Effective user ID"`
	Impersonating bool   `json:"impersonating" description:"Whether an admin overlay is active"`
	AdminID       string `json:"admin_id,omitempty" description:"Impersonating admin, when overlaid"`

	Role             string          `json:"role" description:"Effective role class"`
	RoleState        string          `json:"role_state" description:"Role resolver state"`
	Permissions      map[string]bool `json:"permissions,omitempty" description:"Grant matrix for sub-user identities"`
	PermissionState  string          `json:"permission_state" description:"Permission resolver state"`
	Plan             string          `json:"plan,omitempty" description:"Resolved plan slug"`
	EntitlementState string          `json:"entitlement_state" description:"Entitlement resolver state"`
}

// PermissionSetResponse is a sub-user's effective grant matrix.
type PermissionSetResponse struct {
	UserID      string          `json:"user_id" description:"Sub-user ID"`
	Permissions map[string]bool `json:"permissions" description:"Granted flag by permission key"`
}

// PurgeResponse reports how many audit entries were removed.
type PurgeResponse struct {
	Purged int64 `json:"purged" description:"Number of entries removed"`
}

// ListResponse wraps a list of items with pagination metadata.
type ListResponse[T any] struct {
	Items  []T   `json:"items" description:"List of items"`
	Total  int64 `json:"total" description:"Total count"`
	Limit  int   `json:"limit" description:"Page size"`
	Offset int   `json:"offset" description:"Page offset"`
}
