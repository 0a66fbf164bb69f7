// Package store defines the aggregate persistence interface. Each
// subsystem (subuser, permission, entitlement, auditlog) defines its
// own store interface; the composite Store composes them all.
// Backends: Postgres, SQLite, and Memory.
package store

import (
	"context"

	"github.com/xraph/gatehouse/auditlog"
	"github.com/xraph/gatehouse/entitlement"
	"github.com/xraph/gatehouse/permission"
	"github.com/xraph/gatehouse/subuser"
)

// Store is the aggregate persistence interface. A single backend
// implements all subsystem stores.
type Store interface {
	subuser.Store
	permission.Store
	entitlement.Store
	auditlog.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
