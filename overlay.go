package gatehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/gatehouse/auditlog"
)

// Overlay is an active impersonation: an admin acting as another
// principal. While it exists, every resolver is keyed to the target,
// and the real admin identity stays recorded for audit and for the
// mandatory visible indication.
type Overlay struct {
	Target    Principal `json:"target"`
	AdminID   string    `json:"admin_id"`
	AdminRole RoleClass `json:"admin_role"`
	StartedAt time.Time `json:"started_at"`
}

// Impersonate starts (or replaces) the impersonation overlay for this
// session. The authenticated identity must have resolved to a ready
// admin; anything less is ErrNotAdmin, since an unresolved admin cannot
// prove the privilege. At most one overlay
// is ever active: starting over an existing one replaces it in the same
// atomic transition, it never stacks.
func (s *Session) Impersonate(ctx context.Context, target Principal) error {
	if target.IsZero() {
		return fmt.Errorf("gatehouse: impersonation target: %w", ErrUnauthenticated)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.authn.IsZero() {
		s.mu.Unlock()
		return ErrUnauthenticated
	}
	// The real caller must be a resolved admin. When already
	// impersonating, the admin role was verified at the first start
	// and is carried on the overlay; the current slots belong to the
	// target and say nothing about the admin.
	adminRole := RoleUnknown
	if s.overlay != nil {
		adminRole = s.overlay.AdminRole
	} else if s.roleState == StateReady {
		adminRole = s.role
	}
	if adminRole != RoleAdmin {
		s.mu.Unlock()
		return ErrNotAdmin
	}

	prev := s.overlay
	stale := s.identityKeyLocked()
	ov := &Overlay{
		Target:    target,
		AdminID:   s.authn.ID,
		AdminRole: RoleAdmin,
		StartedAt: time.Now().UTC(),
	}
	s.overlay = ov
	notify := s.resetLocked(stale)
	s.startRefreshLocked()
	s.mu.Unlock()

	if prev != nil {
		s.engine.auditOverlay(auditlog.KindImpersonationStop, prev.AdminID, prev.Target.ID)
		s.engine.emitOverlayStopped(ctx, prev.AdminID, prev.Target.ID)
	}
	s.engine.auditOverlay(auditlog.KindImpersonationStart, ov.AdminID, target.ID)
	s.engine.emitOverlayStarted(ctx, ov.AdminID, target.ID)
	notify()
	return nil
}

// StopImpersonation ends the overlay and returns the session to the
// authenticated identity. Idempotent: stopping without an active
// overlay is a no-op.
func (s *Session) StopImpersonation(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	prev := s.overlay
	if prev == nil {
		s.mu.Unlock()
		return nil
	}
	stale := s.identityKeyLocked()
	s.overlay = nil
	notify := s.resetLocked(stale)
	if !s.authn.IsZero() {
		s.startRefreshLocked()
	}
	s.mu.Unlock()

	s.engine.auditOverlay(auditlog.KindImpersonationStop, prev.AdminID, prev.Target.ID)
	s.engine.emitOverlayStopped(ctx, prev.AdminID, prev.Target.ID)
	notify()
	return nil
}

// Overlay returns the active impersonation overlay, if any.
func (s *Session) Overlay() (Overlay, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.overlay == nil {
		return Overlay{}, false
	}
	return *s.overlay, true
}

func (e *Engine) emitOverlayStarted(ctx context.Context, adminID, targetID string) {
	if e.plugins != nil {
		e.plugins.EmitOverlayStarted(ctx, adminID, targetID)
	}
}

func (e *Engine) emitOverlayStopped(ctx context.Context, adminID, targetID string) {
	if e.plugins != nil {
		e.plugins.EmitOverlayStopped(ctx, adminID, targetID)
	}
}
