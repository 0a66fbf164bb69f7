package gatehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/gatehouse/auditlog"
	"github.com/xraph/gatehouse/id"
	"github.com/xraph/gatehouse/plugin"
	"github.com/xraph/gatehouse/store"
)

// Engine composes the four access policies. It owns the store, the
// decision cache, the session registry, and the plugin registry.
type Engine struct {
	store    store.Store
	cache    Cache
	plugins  *plugin.Registry
	logger   *slog.Logger
	config   Config
	sessions *Registry
}

// NewEngine creates a new gatehouse engine with the given options.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		logger: slog.Default(),
		config: DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		return nil, errors.New("gatehouse: store is required")
	}
	e.sessions = newRegistry(e)
	return e, nil
}

// Store returns the underlying composite store.
func (e *Engine) Store() store.Store { return e.store }

// Sessions returns the session registry.
func (e *Engine) Sessions() *Registry { return e.sessions }

// Plugins returns the plugin registry (may be nil).
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Start performs any startup initialization.
func (e *Engine) Start(_ context.Context) error { return nil }

// Stop shuts down all sessions and notifies plugins.
func (e *Engine) Stop(ctx context.Context) error {
	e.sessions.closeAll(ctx)
	if e.plugins != nil {
		e.plugins.EmitShutdown(ctx)
	}
	return nil
}

// Check evaluates an access request against the session's current
// snapshot. This is the hot path. It never returns an error: upstream
// failures surface as deny-unverified, unresolved state as pending.
func (e *Engine) Check(ctx context.Context, sess *Session, req AccessRequest) AccessDecision {
	start := time.Now()
	snap := sess.Snapshot()

	// 1. Cache hit? Only settled decisions are ever cached, and the
	// identity key rotates on every identity change.
	if e.cache != nil {
		if cached, ok := e.cache.Get(ctx, snap.IdentityKey(), req); ok {
			cached.EvalTimeNs = time.Since(start).Nanoseconds()
			return cached
		}
	}

	// 2. Extension hook: before decide.
	if e.plugins != nil {
		e.plugins.EmitBeforeDecide(ctx, &req)
	}

	// 3. Pure composition of the four policies.
	dec := Decide(snap, req)
	dec.EvalTimeNs = time.Since(start).Nanoseconds()

	// 4. Cache the result. Pending is transient and never cached.
	if e.cache != nil && dec.Settled() {
		e.cache.Set(ctx, snap.IdentityKey(), req, dec)
	}

	// 5. Audit + extension hook: after decide.
	if dec.Settled() && e.config.auditDecisions() {
		e.auditDecision(snap, req, dec)
	}
	if e.plugins != nil {
		e.plugins.EmitAfterDecide(ctx, &req, &dec)
	}

	return dec
}

// Enforce returns an error unless the decision permits the capability.
// Degraded counts as permitted; the caller reads the decision for the
// read-only marker. Pending maps to ErrAccessPending so callers can
// retry rather than misreport a deny.
func (e *Engine) Enforce(ctx context.Context, sess *Session, req AccessRequest) error {
	dec := e.Check(ctx, sess, req)
	switch dec.Outcome {
	case OutcomeAllow, OutcomeDegraded:
		return nil
	case OutcomePending:
		return fmt.Errorf("%w: %s", ErrAccessPending, req)
	default:
		return fmt.Errorf("%w: %s (%s)", ErrAccessDenied, dec.Code, dec.Reason)
	}
}

// auditDecision records a settled decision. Fire-and-forget: audit sink
// failures are logged and never affect the decision.
func (e *Engine) auditDecision(snap Snapshot, req AccessRequest, dec AccessDecision) {
	entry := &auditlog.Entry{
		ID:            id.NewAuditEntryID(),
		Kind:          auditlog.KindDecision,
		ActorID:       snap.Identity.Principal.ID,
		Impersonating: snap.Identity.Impersonating,
		RoleClass:     string(snap.Role),
		Requirement:   req.String(),
		Outcome:       string(dec.Outcome),
		Code:          string(dec.Code),
		Reason:        dec.Reason,
		EvalTimeNs:    dec.EvalTimeNs,
		CreatedAt:     time.Now().UTC(),
	}
	if snap.Identity.Impersonating {
		entry.ActorID = snap.Identity.AdminID
		entry.TargetID = snap.Identity.Principal.ID
	}
	e.writeAudit(entry)
}

// auditOverlay records an impersonation transition.
func (e *Engine) auditOverlay(kind auditlog.Kind, adminID, targetID string) {
	e.writeAudit(&auditlog.Entry{
		ID:        id.NewAuditEntryID(),
		Kind:      kind,
		ActorID:   adminID,
		TargetID:  targetID,
		CreatedAt: time.Now().UTC(),
	})
}

func (e *Engine) writeAudit(entry *auditlog.Entry) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.store.CreateAuditEntry(ctx, entry); err != nil {
			e.logger.Warn("gatehouse: audit write failed",
				"kind", entry.Kind, "actor", entry.ActorID, "error", err)
		}
	}()
}
