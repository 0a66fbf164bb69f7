package plugin

import (
	"context"
	"log/slog"

	"github.com/xraph/gatehouse/entitlement"
	"github.com/xraph/gatehouse/permission"
	"github.com/xraph/gatehouse/subuser"
)

// Named entry types pair a hook with the plugin name for logging.

type beforeDecideEntry struct {
	name string
	hook BeforeDecide
}
type afterDecideEntry struct {
	name string
	hook AfterDecide
}
type overlayStartedEntry struct {
	name string
	hook OverlayStarted
}
type overlayStoppedEntry struct {
	name string
	hook OverlayStopped
}
type membershipChangedEntry struct {
	name string
	hook MembershipChanged
}
type grantChangedEntry struct {
	name string
	hook GrantChanged
}
type planChangedEntry struct {
	name string
	hook PlanChanged
}
type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered plugins and dispatches lifecycle events.
// It type-caches plugins at registration time so emit calls iterate
// only over plugins implementing the relevant hook.
type Registry struct {
	plugins []Plugin
	logger  *slog.Logger

	beforeDecide      []beforeDecideEntry
	afterDecide       []afterDecideEntry
	overlayStarted    []overlayStartedEntry
	overlayStopped    []overlayStoppedEntry
	membershipChanged []membershipChangedEntry
	grantChanged      []grantChangedEntry
	planChanged       []planChangedEntry
	shutdown          []shutdownEntry
}

// NewRegistry creates a plugin registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds a plugin and type-asserts it into all applicable hook
// caches. Plugins are notified in registration order.
func (r *Registry) Register(p Plugin) {
	r.plugins = append(r.plugins, p)
	name := p.Name()

	if h, ok := p.(BeforeDecide); ok {
		r.beforeDecide = append(r.beforeDecide, beforeDecideEntry{name, h})
	}
	if h, ok := p.(AfterDecide); ok {
		r.afterDecide = append(r.afterDecide, afterDecideEntry{name, h})
	}
	if h, ok := p.(OverlayStarted); ok {
		r.overlayStarted = append(r.overlayStarted, overlayStartedEntry{name, h})
	}
	if h, ok := p.(OverlayStopped); ok {
		r.overlayStopped = append(r.overlayStopped, overlayStoppedEntry{name, h})
	}
	if h, ok := p.(MembershipChanged); ok {
		r.membershipChanged = append(r.membershipChanged, membershipChangedEntry{name, h})
	}
	if h, ok := p.(GrantChanged); ok {
		r.grantChanged = append(r.grantChanged, grantChangedEntry{name, h})
	}
	if h, ok := p.(PlanChanged); ok {
		r.planChanged = append(r.planChanged, planChangedEntry{name, h})
	}
	if h, ok := p.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Plugins returns all registered plugins.
func (r *Registry) Plugins() []Plugin { return r.plugins }

// EmitBeforeDecide notifies all plugins that implement BeforeDecide.
func (r *Registry) EmitBeforeDecide(ctx context.Context, req any) {
	for _, e := range r.beforeDecide {
		if err := e.hook.OnBeforeDecide(ctx, req); err != nil {
			r.logHookError("OnBeforeDecide", e.name, err)
		}
	}
}

// EmitAfterDecide notifies all plugins that implement AfterDecide.
func (r *Registry) EmitAfterDecide(ctx context.Context, req, dec any) {
	for _, e := range r.afterDecide {
		if err := e.hook.OnAfterDecide(ctx, req, dec); err != nil {
			r.logHookError("OnAfterDecide", e.name, err)
		}
	}
}

// EmitOverlayStarted notifies all plugins that implement OverlayStarted.
func (r *Registry) EmitOverlayStarted(ctx context.Context, adminID, targetID string) {
	for _, e := range r.overlayStarted {
		if err := e.hook.OnOverlayStarted(ctx, adminID, targetID); err != nil {
			r.logHookError("OnOverlayStarted", e.name, err)
		}
	}
}

// EmitOverlayStopped notifies all plugins that implement OverlayStopped.
func (r *Registry) EmitOverlayStopped(ctx context.Context, adminID, targetID string) {
	for _, e := range r.overlayStopped {
		if err := e.hook.OnOverlayStopped(ctx, adminID, targetID); err != nil {
			r.logHookError("OnOverlayStopped", e.name, err)
		}
	}
}

// EmitMembershipChanged notifies all plugins that implement MembershipChanged.
func (r *Registry) EmitMembershipChanged(ctx context.Context, m *subuser.Membership) {
	for _, e := range r.membershipChanged {
		if err := e.hook.OnMembershipChanged(ctx, m); err != nil {
			r.logHookError("OnMembershipChanged", e.name, err)
		}
	}
}

// EmitGrantChanged notifies all plugins that implement GrantChanged.
func (r *Registry) EmitGrantChanged(ctx context.Context, g *permission.Grant) {
	for _, e := range r.grantChanged {
		if err := e.hook.OnGrantChanged(ctx, g); err != nil {
			r.logHookError("OnGrantChanged", e.name, err)
		}
	}
}

// EmitPlanChanged notifies all plugins that implement PlanChanged.
func (r *Registry) EmitPlanChanged(ctx context.Context, p *entitlement.Plan, sub *entitlement.Subscription) {
	for _, e := range r.planChanged {
		if err := e.hook.OnPlanChanged(ctx, p, sub); err != nil {
			r.logHookError("OnPlanChanged", e.name, err)
		}
	}
}

// EmitShutdown notifies all plugins that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

func (r *Registry) logHookError(hook, plugin string, err error) {
	if r.logger == nil {
		return
	}
	r.logger.Warn("gatehouse: plugin hook failed", "hook", hook, "plugin", plugin, "error", err)
}
