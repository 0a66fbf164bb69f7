// Package auditlog defines the audit Entry entity. Entries record
// access decisions and impersonation overlay transitions. Writes are
// fire-and-forget: a failed audit write never affects a decision.
package auditlog

import (
	"errors"
	"time"

	"github.com/xraph/gatehouse/id"
)

// ErrNotFound is returned when no audit entry matches a lookup.
var ErrNotFound = errors.New("auditlog: entry not found")

// Kind distinguishes what an entry records.
type Kind string

const (
	// KindDecision records an access decision.
	KindDecision Kind = "decision"

	// KindImpersonationStart records an admin starting impersonation.
	KindImpersonationStart Kind = "impersonation_start"

	// KindImpersonationStop records an admin ending impersonation.
	KindImpersonationStop Kind = "impersonation_stop"
)

// Entry is a single audit record.
type Entry struct {
	ID       id.AuditEntryID `json:"id" db:"id"`
	Kind     Kind            `json:"kind" db:"kind"`
	ActorID  string          `json:"actor_id" db:"actor_id"`
	TargetID string          `json:"target_id,omitempty" db:"target_id"`

	// Decision fields, set when Kind == KindDecision.
	Impersonating bool   `json:"impersonating,omitempty" db:"impersonating"`
	RoleClass     string `json:"role_class,omitempty" db:"role_class"`
	Requirement   string `json:"requirement,omitempty" db:"requirement"`
	Outcome       string `json:"outcome,omitempty" db:"outcome"`
	Code          string `json:"code,omitempty" db:"code"`
	Reason        string `json:"reason,omitempty" db:"reason"`
	EvalTimeNs    int64  `json:"eval_time_ns,omitempty" db:"eval_time_ns"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// QueryFilter contains filters for querying audit entries.
type QueryFilter struct {
	Kind     Kind       `json:"kind,omitempty"`
	ActorID  string     `json:"actor_id,omitempty"`
	TargetID string     `json:"target_id,omitempty"`
	Outcome  string     `json:"outcome,omitempty"`
	After    *time.Time `json:"after,omitempty"`
	Before   *time.Time `json:"before,omitempty"`
	Limit    int        `json:"limit,omitempty"`
	Offset   int        `json:"offset,omitempty"`
}
