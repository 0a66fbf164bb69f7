package gatehouse

import (
	"context"
	"sync"

	"github.com/xraph/gatehouse/id"
)

// Registry manages one Session per authenticated user. Enforcement
// points look sessions up here; management handlers use it to push
// invalidation at the users a data change affects.
type Registry struct {
	engine *Engine

	mu       sync.RWMutex
	sessions map[string]*Session
}

func newRegistry(e *Engine) *Registry {
	return &Registry{engine: e, sessions: make(map[string]*Session)}
}

// Bind returns the session for the principal, creating one on first
// use. A changed role claim or plan claim on an existing session
// triggers a full re-resolution.
func (r *Registry) Bind(ctx context.Context, p Principal) (*Session, error) {
	if p.IsZero() {
		return nil, ErrUnauthenticated
	}
	r.mu.Lock()
	sess, ok := r.sessions[p.ID]
	if !ok {
		sess = newSession(r.engine, p)
		r.sessions[p.ID] = sess
		r.mu.Unlock()
		return sess, nil
	}
	r.mu.Unlock()
	if sess.Principal() != p {
		if err := sess.SetPrincipal(ctx, p); err != nil {
			return nil, err
		}
	}
	return sess, nil
}

// Get returns the session for an authenticated user, if one exists.
func (r *Registry) Get(userID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[userID]
	return sess, ok
}

// Unbind closes and discards the session for a user (logout). Overlay
// state dies with the session: it never survives into a fresh
// unauthenticated session.
func (r *Registry) Unbind(_ context.Context, userID string) {
	r.mu.Lock()
	sess, ok := r.sessions[userID]
	delete(r.sessions, userID)
	r.mu.Unlock()
	if ok {
		sess.close()
	}
}

// NotifyChanged re-resolves every session whose effective identity is
// userID. Called after grant, membership, subscription, or plan-table
// mutations so stale resolver values cannot feed later decisions.
func (r *Registry) NotifyChanged(ctx context.Context, userID string) {
	for _, sess := range r.affected(userID) {
		if err := sess.Reresolve(ctx); err != nil {
			r.engine.logger.Warn("gatehouse: re-resolve failed", "user", userID, "error", err)
		}
	}
}

// NotifyPlanChanged re-resolves every session whose effective identity
// subscribes to the plan. Called after plan-table edits and plan
// deletion, where the affected users are known only through their
// subscription rows.
func (r *Registry) NotifyPlanChanged(ctx context.Context, planID id.PlanID) {
	subs, err := r.engine.store.ListSubscriptionsByPlan(ctx, planID)
	if err != nil {
		r.engine.logger.Warn("gatehouse: subscriber lookup failed", "plan", planID, "error", err)
		return
	}
	for _, sub := range subs {
		r.NotifyChanged(ctx, sub.UserID)
	}
}

func (r *Registry) affected(userID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Session
	for _, sess := range r.sessions {
		if sess.Effective().Principal.ID == userID {
			out = append(out, sess)
		}
	}
	return out
}

func (r *Registry) closeAll(_ context.Context) {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
	for _, sess := range sessions {
		sess.close()
	}
}
