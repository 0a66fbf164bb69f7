// Package id defines TypeID-based identifiers for gatehouse entities.
//
// IDs are prefix-qualified, K-sortable (UUIDv7-based), and URL-safe in
// the format "prefix_suffix", e.g. "subu_01h2xcejqtf2nbrexx3vqjhp41".
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// Prefix constants for all gatehouse entity types.
const (
	PrefixMembership   Prefix = "subu"
	PrefixGrant        Prefix = "grant"
	PrefixPlan         Prefix = "plan"
	PrefixSubscription Prefix = "subn"
	PrefixAuditEntry   Prefix = "alog"
)

// ID is the identifier type for all gatehouse entities.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new globally unique ID with the given prefix. It
// panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string into an ID.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses a TypeID string and validates its prefix.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}
	return parsed, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded IDs.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}
	return parsed
}

// MembershipID identifies a sub-user membership (prefix: "subu").
type MembershipID = ID

// GrantID identifies a permission grant row (prefix: "grant").
type GrantID = ID

// PlanID identifies a subscription plan (prefix: "plan").
type PlanID = ID

// SubscriptionID identifies a user's plan subscription (prefix: "subn").
type SubscriptionID = ID

// AuditEntryID identifies an audit log entry (prefix: "alog").
type AuditEntryID = ID

// NewMembershipID generates a new unique sub-user membership ID.
func NewMembershipID() ID { return New(PrefixMembership) }

// NewGrantID generates a new unique grant ID.
func NewGrantID() ID { return New(PrefixGrant) }

// NewPlanID generates a new unique plan ID.
func NewPlanID() ID { return New(PrefixPlan) }

// NewSubscriptionID generates a new unique subscription ID.
func NewSubscriptionID() ID { return New(PrefixSubscription) }

// NewAuditEntryID generates a new unique audit entry ID.
func NewAuditEntryID() ID { return New(PrefixAuditEntry) }

// ParseMembershipID parses a string and validates the "subu" prefix.
func ParseMembershipID(s string) (ID, error) { return ParseWithPrefix(s, PrefixMembership) }

// ParseGrantID parses a string and validates the "grant" prefix.
func ParseGrantID(s string) (ID, error) { return ParseWithPrefix(s, PrefixGrant) }

// ParsePlanID parses a string and validates the "plan" prefix.
func ParsePlanID(s string) (ID, error) { return ParseWithPrefix(s, PrefixPlan) }

// ParseSubscriptionID parses a string and validates the "subn" prefix.
func ParseSubscriptionID(s string) (ID, error) { return ParseWithPrefix(s, PrefixSubscription) }

// ParseAuditEntryID parses a string and validates the "alog" prefix.
func ParseAuditEntryID(s string) (ID, error) { return ParseWithPrefix(s, PrefixAuditEntry) }

// String returns the full TypeID string (prefix_suffix), or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool { return !i.valid }

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}
	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Value implements driver.Valuer. The Nil ID stores as NULL so optional
// foreign key columns stay nullable.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}
	return i.inner.String(), nil
}

// Scan implements sql.Scanner.
func (i *ID) Scan(src any) error {
	if src == nil {
		*i = Nil
		return nil
	}
	switch v := src.(type) {
	case string:
		if v == "" {
			*i = Nil
			return nil
		}
		return i.UnmarshalText([]byte(v))
	case []byte:
		if len(v) == 0 {
			*i = Nil
			return nil
		}
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
