// Package plugin defines the plugin system for gatehouse. Plugins are
// notified of lifecycle events (decision made, overlay started, grant
// changed, ...) and can react, for example with logging or metrics.
//
// Each lifecycle hook is a separate interface so plugins opt in only
// to the events they care about.
package plugin

import (
	"context"

	"github.com/xraph/gatehouse/entitlement"
	"github.com/xraph/gatehouse/permission"
	"github.com/xraph/gatehouse/subuser"
)

// Plugin is the base interface all plugins must implement.
type Plugin interface {
	// Name returns a unique human-readable name for the plugin.
	Name() string
}

// ──────────────────────────────────────────────────
// Decision lifecycle hooks
// ──────────────────────────────────────────────────

// BeforeDecide is called before an access decision is evaluated.
// The req parameter is *gatehouse.AccessRequest (passed as any to
// avoid an import cycle).
type BeforeDecide interface {
	OnBeforeDecide(ctx context.Context, req any) error
}

// AfterDecide is called after an access decision is made. The req
// parameter is *gatehouse.AccessRequest; dec is
// *gatehouse.AccessDecision.
type AfterDecide interface {
	OnAfterDecide(ctx context.Context, req, dec any) error
}

// ──────────────────────────────────────────────────
// Impersonation hooks
// ──────────────────────────────────────────────────

// OverlayStarted is called after an admin starts impersonating a user.
type OverlayStarted interface {
	OnOverlayStarted(ctx context.Context, adminID, targetID string) error
}

// OverlayStopped is called after an impersonation overlay ends,
// whether by an explicit stop, a replacement, or a logout.
type OverlayStopped interface {
	OnOverlayStopped(ctx context.Context, adminID, targetID string) error
}

// ──────────────────────────────────────────────────
// Data mutation hooks
// ──────────────────────────────────────────────────

// MembershipChanged is called after a sub-user membership is created,
// updated, or deleted.
type MembershipChanged interface {
	OnMembershipChanged(ctx context.Context, m *subuser.Membership) error
}

// GrantChanged is called after a permission grant is written or removed.
type GrantChanged interface {
	OnGrantChanged(ctx context.Context, g *permission.Grant) error
}

// PlanChanged is called after a plan's feature table or a user's
// subscription changes. sub may be nil for plan-table edits.
type PlanChanged interface {
	OnPlanChanged(ctx context.Context, p *entitlement.Plan, sub *entitlement.Subscription) error
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Shutdown is called when the engine stops.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
