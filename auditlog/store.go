package auditlog

import (
	"context"
	"time"

	"github.com/xraph/gatehouse/id"
)

// Store defines persistence operations for audit entries.
type Store interface {
	// CreateAuditEntry persists a new audit entry.
	CreateAuditEntry(ctx context.Context, e *Entry) error

	// GetAuditEntry retrieves an audit entry by ID.
	GetAuditEntry(ctx context.Context, entryID id.AuditEntryID) (*Entry, error)

	// ListAuditEntries returns audit entries matching the filter.
	ListAuditEntries(ctx context.Context, filter *QueryFilter) ([]*Entry, error)

	// CountAuditEntries returns the number of entries matching the filter.
	CountAuditEntries(ctx context.Context, filter *QueryFilter) (int64, error)

	// PurgeAuditEntries removes entries older than the given time.
	PurgeAuditEntries(ctx context.Context, before time.Time) (int64, error)
}
