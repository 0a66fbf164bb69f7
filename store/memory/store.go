// Package memory provides an in-memory implementation of the gatehouse
// composite store. It is intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xraph/gatehouse/auditlog"
	"github.com/xraph/gatehouse/entitlement"
	"github.com/xraph/gatehouse/id"
	"github.com/xraph/gatehouse/permission"
	"github.com/xraph/gatehouse/subuser"
)

// Compile-time interface checks.
var (
	_ subuser.Store     = (*Store)(nil)
	_ permission.Store  = (*Store)(nil)
	_ entitlement.Store = (*Store)(nil)
	_ auditlog.Store    = (*Store)(nil)
)

// Store is a thread-safe in-memory store for all gatehouse entities.
type Store struct {
	mu sync.RWMutex

	memberships   map[string]*subuser.Membership
	grants        map[string]*permission.Grant
	plans         map[string]*entitlement.Plan
	subscriptions map[string]*entitlement.Subscription // keyed by user ID
	auditEntries  map[string]*auditlog.Entry
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		memberships:   make(map[string]*subuser.Membership),
		grants:        make(map[string]*permission.Grant),
		plans:         make(map[string]*entitlement.Plan),
		subscriptions: make(map[string]*entitlement.Subscription),
		auditEntries:  make(map[string]*auditlog.Entry),
	}
}

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping is a no-op for the memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Sub-user membership store
// ──────────────────────────────────────────────────

func (s *Store) CreateMembership(_ context.Context, m *subuser.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.memberships {
		if existing.UserID == m.UserID {
			return fmt.Errorf("user %s already in account %s: %w", m.UserID, existing.AccountID, subuser.ErrDuplicate)
		}
	}
	s.memberships[m.ID.String()] = copyMembership(m)
	return nil
}

func (s *Store) GetMembership(_ context.Context, membershipID id.MembershipID) (*subuser.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memberships[membershipID.String()]
	if !ok {
		return nil, fmt.Errorf("membership %s: %w", membershipID, subuser.ErrNotFound)
	}
	return copyMembership(m), nil
}

func (s *Store) GetMembershipByUser(_ context.Context, userID string) (*subuser.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.memberships {
		if m.UserID == userID {
			return copyMembership(m), nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", userID, subuser.ErrNotFound)
}

func (s *Store) UpdateMembership(_ context.Context, m *subuser.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.memberships[m.ID.String()]; !ok {
		return fmt.Errorf("membership %s: %w", m.ID, subuser.ErrNotFound)
	}
	s.memberships[m.ID.String()] = copyMembership(m)
	return nil
}

func (s *Store) DeleteMembership(_ context.Context, membershipID id.MembershipID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.memberships, membershipID.String())
	return nil
}

func (s *Store) ListMemberships(_ context.Context, filter *subuser.ListFilter) ([]*subuser.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*subuser.Membership
	for _, m := range s.memberships {
		if !matchMembership(m, filter) {
			continue
		}
		result = append(result, copyMembership(m))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if filter != nil {
		result = paginate(result, filter.Limit, filter.Offset)
	}
	return result, nil
}

func (s *Store) CountMemberships(_ context.Context, filter *subuser.ListFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for _, m := range s.memberships {
		if matchMembership(m, filter) {
			count++
		}
	}
	return count, nil
}

func matchMembership(m *subuser.Membership, filter *subuser.ListFilter) bool {
	if filter == nil {
		return true
	}
	if filter.AccountID != "" && m.AccountID != filter.AccountID {
		return false
	}
	if filter.UserID != "" && m.UserID != filter.UserID {
		return false
	}
	if filter.Suspended != nil && m.Suspended != *filter.Suspended {
		return false
	}
	return true
}

// ──────────────────────────────────────────────────
// Permission grant store
// ──────────────────────────────────────────────────

func (s *Store) SetGrant(_ context.Context, g *permission.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// One row per (user, key): replace in place when one exists.
	for _, existing := range s.grants {
		if existing.UserID == g.UserID && existing.Key == g.Key {
			existing.Granted = g.Granted
			existing.UpdatedAt = g.UpdatedAt
			g.ID = existing.ID
			return nil
		}
	}
	s.grants[g.ID.String()] = copyGrant(g)
	return nil
}

func (s *Store) GetGrant(_ context.Context, grantID id.GrantID) (*permission.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grants[grantID.String()]
	if !ok {
		return nil, fmt.Errorf("grant %s: %w", grantID, permission.ErrGrantNotFound)
	}
	return copyGrant(g), nil
}

func (s *Store) DeleteGrant(_ context.Context, grantID id.GrantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants, grantID.String())
	return nil
}

func (s *Store) ListGrants(_ context.Context, filter *permission.ListFilter) ([]*permission.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*permission.Grant
	for _, g := range s.grants {
		if filter != nil {
			if filter.AccountID != "" && g.AccountID != filter.AccountID {
				continue
			}
			if filter.UserID != "" && g.UserID != filter.UserID {
				continue
			}
			if filter.Key != "" && g.Key != filter.Key {
				continue
			}
		}
		result = append(result, copyGrant(g))
	}
	sort.Slice(result, func(i, j int) bool {
		return strings.Compare(string(result[i].Key), string(result[j].Key)) < 0
	})
	if filter != nil {
		result = paginate(result, filter.Limit, filter.Offset)
	}
	return result, nil
}

func (s *Store) GetSetForUser(_ context.Context, userID string) (permission.Set, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := make(permission.Set)
	for _, g := range s.grants {
		if g.UserID == userID {
			set[g.Key] = g.Granted
		}
	}
	return set, nil
}

func (s *Store) DeleteGrantsByUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, g := range s.grants {
		if g.UserID == userID {
			delete(s.grants, k)
		}
	}
	return nil
}

func (s *Store) DeleteGrantsByAccount(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, g := range s.grants {
		if g.AccountID == accountID {
			delete(s.grants, k)
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Entitlement store
// ──────────────────────────────────────────────────

func (s *Store) CreatePlan(_ context.Context, p *entitlement.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[p.ID.String()] = copyPlan(p)
	return nil
}

func (s *Store) GetPlan(_ context.Context, planID id.PlanID) (*entitlement.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[planID.String()]
	if !ok {
		return nil, fmt.Errorf("plan %s: %w", planID, entitlement.ErrPlanNotFound)
	}
	return copyPlan(p), nil
}

func (s *Store) GetPlanBySlug(_ context.Context, slug string) (*entitlement.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.plans {
		if p.Slug == slug {
			return copyPlan(p), nil
		}
	}
	return nil, fmt.Errorf("plan slug %q: %w", slug, entitlement.ErrPlanNotFound)
}

func (s *Store) UpdatePlan(_ context.Context, p *entitlement.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[p.ID.String()]; !ok {
		return fmt.Errorf("plan %s: %w", p.ID, entitlement.ErrPlanNotFound)
	}
	s.plans[p.ID.String()] = copyPlan(p)
	return nil
}

func (s *Store) DeletePlan(_ context.Context, planID id.PlanID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.plans, planID.String())
	return nil
}

func (s *Store) ListPlans(_ context.Context, filter *entitlement.ListFilter) ([]*entitlement.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*entitlement.Plan
	for _, p := range s.plans {
		if filter != nil {
			if filter.Slug != "" && p.Slug != filter.Slug {
				continue
			}
			if filter.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(filter.Search)) {
				continue
			}
		}
		result = append(result, copyPlan(p))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if filter != nil {
		result = paginate(result, filter.Limit, filter.Offset)
	}
	return result, nil
}

func (s *Store) SetSubscription(_ context.Context, sub *entitlement.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.subscriptions[sub.UserID]; ok {
		sub.ID = existing.ID
	}
	s.subscriptions[sub.UserID] = copySubscription(sub)
	return nil
}

func (s *Store) GetSubscriptionByUser(_ context.Context, userID string) (*entitlement.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subscriptions[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, entitlement.ErrSubscriptionNotFound)
	}
	return copySubscription(sub), nil
}

func (s *Store) ListSubscriptionsByPlan(_ context.Context, planID id.PlanID) ([]*entitlement.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*entitlement.Subscription
	for _, sub := range s.subscriptions {
		if sub.PlanID == planID {
			result = append(result, copySubscription(sub))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UserID < result[j].UserID
	})
	return result, nil
}

func (s *Store) DeleteSubscriptionByUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscriptions, userID)
	return nil
}

// ──────────────────────────────────────────────────
// Audit log store
// ──────────────────────────────────────────────────

func (s *Store) CreateAuditEntry(_ context.Context, e *auditlog.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditEntries[e.ID.String()] = copyAuditEntry(e)
	return nil
}

func (s *Store) GetAuditEntry(_ context.Context, entryID id.AuditEntryID) (*auditlog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.auditEntries[entryID.String()]
	if !ok {
		return nil, fmt.Errorf("audit entry %s: %w", entryID, auditlog.ErrNotFound)
	}
	return copyAuditEntry(e), nil
}

func (s *Store) ListAuditEntries(_ context.Context, filter *auditlog.QueryFilter) ([]*auditlog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*auditlog.Entry
	for _, e := range s.auditEntries {
		if !matchAuditEntry(e, filter) {
			continue
		}
		result = append(result, copyAuditEntry(e))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if filter != nil {
		result = paginate(result, filter.Limit, filter.Offset)
	}
	return result, nil
}

func (s *Store) CountAuditEntries(_ context.Context, filter *auditlog.QueryFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for _, e := range s.auditEntries {
		if matchAuditEntry(e, filter) {
			count++
		}
	}
	return count, nil
}

func (s *Store) PurgeAuditEntries(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var purged int64
	for k, e := range s.auditEntries {
		if e.CreatedAt.Before(before) {
			delete(s.auditEntries, k)
			purged++
		}
	}
	return purged, nil
}

func matchAuditEntry(e *auditlog.Entry, filter *auditlog.QueryFilter) bool {
	if filter == nil {
		return true
	}
	if filter.Kind != "" && e.Kind != filter.Kind {
		return false
	}
	if filter.ActorID != "" && e.ActorID != filter.ActorID {
		return false
	}
	if filter.TargetID != "" && e.TargetID != filter.TargetID {
		return false
	}
	if filter.Outcome != "" && e.Outcome != filter.Outcome {
		return false
	}
	if filter.After != nil && !e.CreatedAt.After(*filter.After) {
		return false
	}
	if filter.Before != nil && !e.CreatedAt.Before(*filter.Before) {
		return false
	}
	return true
}

// ──────────────────────────────────────────────────
// Copy + pagination helpers
// ──────────────────────────────────────────────────

func copyMembership(m *subuser.Membership) *subuser.Membership {
	out := *m
	return &out
}

func copyGrant(g *permission.Grant) *permission.Grant {
	out := *g
	return &out
}

func copyPlan(p *entitlement.Plan) *entitlement.Plan {
	out := *p
	if p.Features != nil {
		out.Features = make(map[entitlement.Feature]entitlement.Level, len(p.Features))
		for f, lvl := range p.Features {
			out.Features[f] = lvl
		}
	}
	return &out
}

func copySubscription(sub *entitlement.Subscription) *entitlement.Subscription {
	out := *sub
	return &out
}

func copyAuditEntry(e *auditlog.Entry) *auditlog.Entry {
	out := *e
	return &out
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
