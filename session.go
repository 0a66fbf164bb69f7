package gatehouse

import (
	"context"
	"errors"
	"sync"

	"github.com/xraph/gatehouse/auditlog"
	"github.com/xraph/gatehouse/entitlement"
	"github.com/xraph/gatehouse/permission"
	"github.com/xraph/gatehouse/subuser"
)

// Session holds the resolver state for one authenticated user: the
// role classification, the sub-user permission set, the plan
// entitlements, and the impersonation overlay. All slots are keyed to
// the effective identity; every identity change cancels the previous
// refresh, bumps the generation, and moves every slot back to Pending
// in the same critical section, so no decision can observe a new
// identity with a stale resolver value.
type Session struct {
	engine *Engine

	mu      sync.Mutex
	closed  bool
	authn   Principal
	overlay *Overlay
	gen     uint64
	cancel  context.CancelFunc

	role      RoleClass
	roleState LoadingState

	perms     permission.Set
	permState LoadingState

	plan     *entitlement.Plan
	entState LoadingState

	settled chan struct{}
	subs    map[int]func()
	nextSub int
}

func newSession(e *Engine, p Principal) *Session {
	s := &Session{
		engine:  e,
		authn:   p,
		settled: make(chan struct{}),
		subs:    make(map[int]func()),
	}
	s.mu.Lock()
	s.resetLocked(s.identityKeyLocked())
	s.startRefreshLocked()
	s.mu.Unlock()
	return s
}

// Principal returns the authenticated principal, ignoring any overlay.
func (s *Session) Principal() Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authn
}

// Effective returns the identity actually being authorized.
func (s *Session) Effective() EffectiveIdentity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.effectiveLocked()
}

func (s *Session) effectiveLocked() EffectiveIdentity {
	if s.overlay != nil {
		return EffectiveIdentity{
			Principal:     s.overlay.Target,
			Impersonating: true,
			AdminID:       s.overlay.AdminID,
		}
	}
	return EffectiveIdentity{Principal: s.authn}
}

// SetPrincipal replaces the authenticated principal (login swap), or
// logs out when given the zero principal. Any active overlay is
// dropped: impersonation never survives an authentication change.
func (s *Session) SetPrincipal(ctx context.Context, p Principal) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	prev := s.overlay
	stale := s.identityKeyLocked()
	s.authn = p
	s.overlay = nil
	notify := s.resetLocked(stale)
	if !p.IsZero() {
		s.startRefreshLocked()
	}
	s.mu.Unlock()

	if prev != nil {
		s.engine.auditOverlay(auditlog.KindImpersonationStop, prev.AdminID, prev.Target.ID)
		s.engine.emitOverlayStopped(ctx, prev.AdminID, prev.Target.ID)
	}
	notify()
	return nil
}

// Reresolve discards all resolver state for the current effective
// identity and fetches it again. Called when upstream rows change
// (grants, membership, subscription).
func (s *Session) Reresolve(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	notify := s.resetLocked(s.identityKeyLocked())
	if !s.effectiveLocked().Principal.IsZero() {
		s.startRefreshLocked()
	}
	s.mu.Unlock()
	notify()
	return nil
}

// Snapshot returns a consistent view of the session for deciding.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Identity:         s.effectiveLocked(),
		Generation:       s.gen,
		RealRole:         s.role,
		Role:             s.role,
		RoleState:        s.roleState,
		Permissions:      s.perms,
		PermissionState:  s.permState,
		Plan:             s.plan,
		EntitlementState: s.entState,
	}
	if s.overlay != nil {
		snap.RealRole = s.overlay.AdminRole
	}
	return snap
}

// Subscribe registers fn to run after every snapshot change (identity
// transitions and resolver settlements). It returns an unsubscribe
// function. fn must not call back into the session synchronously.
func (s *Session) Subscribe(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.nextSub
	s.nextSub++
	s.subs[key] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, key)
	}
}

// Ready blocks until every resolver slot has settled for the current
// identity, or ctx is done. The resolver timeout bounds the wait: slots
// that cannot resolve settle to Failed rather than pending forever.
func (s *Session) Ready(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return ErrSessionClosed
		}
		if s.effectiveLocked().Principal.IsZero() {
			s.mu.Unlock()
			return ErrUnauthenticated
		}
		ch := s.settled
		done := s.settledLocked()
		s.mu.Unlock()
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

func (s *Session) settledLocked() bool {
	return s.roleState.Settled() && s.permState.Settled() && s.entState.Settled()
}

// close cancels any in-flight refresh and detaches all subscribers.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	// Wake parked Ready waiters so they observe the closed session.
	if !s.settledLocked() {
		close(s.settled)
	}
	s.subs = map[int]func(){}
}

// identityKeyLocked is the cache partition for the current effective
// identity and generation. Callers that swap the identity must capture
// it before the swap so the superseded partition is the one
// invalidated.
func (s *Session) identityKeyLocked() string {
	return Snapshot{Identity: s.effectiveLocked(), Generation: s.gen}.IdentityKey()
}

// resetLocked moves every slot to Pending under the caller's lock:
// generation bump, in-flight cancellation, cache invalidation, and slot
// reset happen in one logical step. staleKey names the cache partition
// of the identity being superseded. It returns the subscriber
// notification to run after unlock.
func (s *Session) resetLocked(staleKey string) func() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.engine.cache != nil {
		s.engine.cache.InvalidateIdentity(context.Background(), staleKey)
	}
	// Wake every Ready waiter parked on the superseded channel so it
	// re-checks against the new identity. The channel is closed iff all
	// slots had settled, so this close cannot double up with apply.
	if !s.settledLocked() {
		close(s.settled)
	}
	s.gen++
	s.role = RoleUnknown
	s.roleState = StatePending
	s.perms = nil
	s.permState = StatePending
	s.plan = nil
	s.entState = StatePending
	s.settled = make(chan struct{})
	return s.notifyFnLocked()
}

// notifyFnLocked snapshots the subscriber list for invocation outside
// the lock.
func (s *Session) notifyFnLocked() func() {
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	return func() {
		for _, fn := range fns {
			fn()
		}
	}
}

// startRefreshLocked launches the single resolver pass for the current
// generation. At most one refresh is in flight per session; a stale
// pass observes the generation mismatch and discards its results.
func (s *Session) startRefreshLocked() {
	gen := s.gen
	p := s.effectiveLocked().Principal
	ctx, cancel := context.WithTimeout(context.Background(), s.engine.config.resolveTimeout())
	s.cancel = cancel
	go s.resolve(ctx, cancel, gen, p)
}

func (s *Session) resolve(ctx context.Context, cancel context.CancelFunc, gen uint64, p Principal) {
	defer cancel()
	defer s.settleRemaining(gen)
	st := s.engine.store

	// Role classification: sub-user membership lookup first, then the
	// raw role claim. A missing membership is an ordinary answer.
	roleClass, roleState := RoleUnknown, StateFailed
	m, err := st.GetMembershipByUser(ctx, p.ID)
	switch {
	case err == nil && m != nil && !m.Suspended:
		roleClass, roleState = RoleSubUser, StateReady
	case err == nil || errors.Is(err, subuser.ErrNotFound):
		switch p.RoleClaim {
		case "admin":
			roleClass, roleState = RoleAdmin, StateReady
		case "landlord":
			roleClass, roleState = RoleLandlord, StateReady
		case "tenant":
			roleClass, roleState = RoleTenant, StateReady
		default:
			// Unclassifiable claim resolves to Unknown/Failed, which
			// gates every role-sensitive decision closed.
			s.engine.logger.Warn("gatehouse: unclassifiable role claim",
				"user", p.ID, "claim", p.RoleClaim)
		}
	default:
		s.engine.logger.Warn("gatehouse: membership lookup failed", "user", p.ID, "error", err)
	}
	s.applyRole(gen, roleClass, roleState)

	// Permission matrix: meaningful for sub-users only. For every
	// other (known) role the matrix is irrelevant and the slot settles
	// immediately; an unknown role cannot prove the matrix irrelevant,
	// so the slot fails closed with it.
	switch {
	case roleState == StateReady && roleClass == RoleSubUser:
		set, err := st.GetSetForUser(ctx, p.ID)
		if err != nil {
			s.engine.logger.Warn("gatehouse: grant lookup failed", "user", p.ID, "error", err)
			s.applyPerms(gen, nil, StateFailed)
		} else {
			s.applyPerms(gen, set, StateReady)
		}
	case roleState == StateReady:
		s.applyPerms(gen, nil, StateReady)
	default:
		s.applyPerms(gen, nil, StateFailed)
	}

	// Entitlements: subscription row first, then the plan claim from
	// the identity source. No plan means no feature is entitled.
	var plan *entitlement.Plan
	entState := StateReady
	sub, err := st.GetSubscriptionByUser(ctx, p.ID)
	switch {
	case err == nil:
		plan, err = st.GetPlan(ctx, sub.PlanID)
		if err != nil {
			// A dangling plan reference is a failure, not an empty plan.
			s.engine.logger.Warn("gatehouse: plan lookup failed",
				"user", p.ID, "plan", sub.PlanID, "error", err)
			plan, entState = nil, StateFailed
		}
	case errors.Is(err, entitlement.ErrSubscriptionNotFound):
		if p.PlanID != "" {
			plan, err = st.GetPlanBySlug(ctx, p.PlanID)
			if errors.Is(err, entitlement.ErrPlanNotFound) {
				// A claim naming a retired plan entitles nothing.
				plan = nil
			} else if err != nil {
				s.engine.logger.Warn("gatehouse: plan lookup failed",
					"user", p.ID, "plan", p.PlanID, "error", err)
				plan, entState = nil, StateFailed
			}
		}
	default:
		s.engine.logger.Warn("gatehouse: subscription lookup failed", "user", p.ID, "error", err)
		entState = StateFailed
	}
	s.applyPlan(gen, plan, entState)
}

func (s *Session) applyRole(gen uint64, rc RoleClass, state LoadingState) {
	s.apply(gen, func() {
		s.role = rc
		s.roleState = state
	})
}

func (s *Session) applyPerms(gen uint64, set permission.Set, state LoadingState) {
	s.apply(gen, func() {
		s.perms = set
		s.permState = state
	})
}

func (s *Session) applyPlan(gen uint64, plan *entitlement.Plan, state LoadingState) {
	s.apply(gen, func() {
		s.plan = plan
		s.entState = state
	})
}

func (s *Session) apply(gen uint64, set func()) {
	s.mu.Lock()
	if s.closed || s.gen != gen {
		s.mu.Unlock()
		return
	}
	set()
	if s.settledLocked() {
		close(s.settled)
	}
	notify := s.notifyFnLocked()
	s.mu.Unlock()
	notify()
}

// settleRemaining fails any slot still pending when the resolver pass
// ends, so a timed-out lookup gates as Failed instead of pending
// forever.
func (s *Session) settleRemaining(gen uint64) {
	s.mu.Lock()
	if s.closed || s.gen != gen || s.settledLocked() {
		s.mu.Unlock()
		return
	}
	if s.roleState == StatePending {
		s.roleState = StateFailed
	}
	if s.permState == StatePending {
		s.permState = StateFailed
	}
	if s.entState == StatePending {
		s.entState = StateFailed
	}
	close(s.settled)
	notify := s.notifyFnLocked()
	s.mu.Unlock()
	notify()
}
