package gatehouse

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/gatehouse/entitlement"
	"github.com/xraph/gatehouse/id"
	"github.com/xraph/gatehouse/permission"
	"github.com/xraph/gatehouse/store"
	"github.com/xraph/gatehouse/store/memory"
	"github.com/xraph/gatehouse/subuser"
)

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *memory.Store) {
	t.Helper()
	s := memory.New()
	eng, err := NewEngine(append([]Option{WithStore(s)}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = eng.Stop(context.Background()) })
	return eng, s
}

func bindReady(t *testing.T, eng *Engine, p Principal) *Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sess, err := eng.Sessions().Bind(ctx, p)
	if err != nil {
		t.Fatal(err)
	}
	if err := sess.Ready(ctx); err != nil {
		t.Fatal(err)
	}
	return sess
}

func seedPlan(t *testing.T, s store.Store, slug string, features map[entitlement.Feature]entitlement.Level) *entitlement.Plan {
	t.Helper()
	p := &entitlement.Plan{
		ID:       id.NewPlanID(),
		Slug:     slug,
		Name:     slug,
		Features: features,
	}
	if err := s.CreatePlan(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestNewEngine_RequiresStore(t *testing.T) {
	if _, err := NewEngine(); err == nil {
		t.Fatal("expected error when store is nil")
	}
}

func TestResolve_RoleClaims(t *testing.T) {
	eng, _ := newTestEngine(t)
	tests := []struct {
		claim string
		want  RoleClass
	}{
		{"landlord", RoleLandlord},
		{"tenant", RoleTenant},
		{"admin", RoleAdmin},
	}
	for _, tt := range tests {
		sess := bindReady(t, eng, Principal{ID: "u_" + tt.claim, RoleClaim: tt.claim})
		snap := sess.Snapshot()
		if snap.RoleState != StateReady || snap.Role != tt.want {
			t.Fatalf("claim %q: got %s/%s, want ready/%s", tt.claim, snap.RoleState, snap.Role, tt.want)
		}
	}
}

func TestResolve_MembershipOverridesClaim(t *testing.T) {
	eng, s := newTestEngine(t)
	err := s.CreateMembership(context.Background(), &subuser.Membership{
		ID:        id.NewMembershipID(),
		AccountID: "acct1",
		UserID:    "u1",
	})
	if err != nil {
		t.Fatal(err)
	}

	// The membership row wins even when the identity source still
	// claims landlord.
	sess := bindReady(t, eng, Principal{ID: "u1", RoleClaim: "landlord"})
	if snap := sess.Snapshot(); snap.Role != RoleSubUser {
		t.Fatalf("expected sub_user, got %s", snap.Role)
	}
}

func TestResolve_SuspendedMembershipFallsBackToClaim(t *testing.T) {
	eng, s := newTestEngine(t)
	err := s.CreateMembership(context.Background(), &subuser.Membership{
		ID:        id.NewMembershipID(),
		AccountID: "acct1",
		UserID:    "u1",
		Suspended: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	sess := bindReady(t, eng, Principal{ID: "u1", RoleClaim: "tenant"})
	if snap := sess.Snapshot(); snap.Role != RoleTenant {
		t.Fatalf("expected tenant for suspended membership, got %s", snap.Role)
	}
}

func TestResolve_UnclassifiableClaimFailsClosed(t *testing.T) {
	eng, _ := newTestEngine(t)
	sess := bindReady(t, eng, Principal{ID: "u1", RoleClaim: "superuser"})
	snap := sess.Snapshot()
	if snap.RoleState != StateFailed || snap.Role != RoleUnknown {
		t.Fatalf("got %s/%s, want failed/unknown", snap.RoleState, snap.Role)
	}
	dec := eng.Check(context.Background(), sess, AccessRequest{Role: RoleLandlord})
	if dec.Code != CodeDenyUnverified {
		t.Fatalf("expected deny_unverified, got %s (%s)", dec.Outcome, dec.Code)
	}
}

func TestResolve_SubUserPermissions(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	err := s.CreateMembership(ctx, &subuser.Membership{
		ID:        id.NewMembershipID(),
		AccountID: "acct1",
		UserID:    "u1",
	})
	if err != nil {
		t.Fatal(err)
	}
	err = s.SetGrant(ctx, &permission.Grant{
		ID:        id.NewGrantID(),
		AccountID: "acct1",
		UserID:    "u1",
		Key:       permission.KeyManageTenants,
		Granted:   true,
	})
	if err != nil {
		t.Fatal(err)
	}

	sess := bindReady(t, eng, Principal{ID: "u1"})
	dec := eng.Check(ctx, sess, AccessRequest{Permission: permission.KeyManageTenants})
	if !dec.Allowed() {
		t.Fatalf("expected allow, got %s (%s)", dec.Outcome, dec.Code)
	}
	dec = eng.Check(ctx, sess, AccessRequest{Permission: permission.KeyViewFinancials})
	if dec.Code != CodeDenyPermission {
		t.Fatalf("expected deny_permission for ungranted key, got %s (%s)", dec.Outcome, dec.Code)
	}
}

func TestResolve_PlanFromSubscription(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	plan := seedPlan(t, s, "pro", map[entitlement.Feature]entitlement.Level{
		entitlement.FeatureBulkMessaging: entitlement.LevelFull,
	})
	err := s.SetSubscription(ctx, &entitlement.Subscription{
		ID:     id.NewSubscriptionID(),
		UserID: "u1",
		PlanID: plan.ID,
	})
	if err != nil {
		t.Fatal(err)
	}

	sess := bindReady(t, eng, Principal{ID: "u1", RoleClaim: "landlord"})
	dec := eng.Check(ctx, sess, AccessRequest{Feature: entitlement.FeatureBulkMessaging})
	if !dec.Allowed() {
		t.Fatalf("expected allow, got %s (%s)", dec.Outcome, dec.Code)
	}
	dec = eng.Check(ctx, sess, AccessRequest{Feature: entitlement.FeatureAPIAccess})
	if dec.Code != CodeDenyNotEntitled {
		t.Fatalf("expected deny_not_entitled, got %s (%s)", dec.Outcome, dec.Code)
	}
}

func TestResolve_PlanClaimFallback(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	seedPlan(t, s, "starter", map[entitlement.Feature]entitlement.Level{
		entitlement.FeatureMaintenanceTracking: entitlement.LevelFull,
	})

	// No subscription row: the plan claim from the identity source is
	// used, looked up by slug.
	sess := bindReady(t, eng, Principal{ID: "u1", RoleClaim: "landlord", PlanID: "starter"})
	dec := eng.Check(ctx, sess, AccessRequest{Feature: entitlement.FeatureMaintenanceTracking})
	if !dec.Allowed() {
		t.Fatalf("expected allow via plan claim, got %s (%s)", dec.Outcome, dec.Code)
	}
}

func TestResolve_RetiredPlanClaimEntitlesNothing(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	// A claim naming a plan that no longer exists settles ready with no
	// plan: an ordinary no-entitlement answer, not a failure.
	sess := bindReady(t, eng, Principal{ID: "u1", RoleClaim: "landlord", PlanID: "legacy"})
	snap := sess.Snapshot()
	if snap.EntitlementState != StateReady || snap.Plan != nil {
		t.Fatalf("got %s plan=%v, want ready with no plan", snap.EntitlementState, snap.Plan)
	}
	dec := eng.Check(ctx, sess, AccessRequest{Feature: entitlement.FeatureAPIAccess})
	if dec.Code != CodeDenyNotEntitled {
		t.Fatalf("expected deny_not_entitled, got %s (%s)", dec.Outcome, dec.Code)
	}
}

func TestResolve_DanglingSubscriptionFailsClosed(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	err := s.SetSubscription(ctx, &entitlement.Subscription{
		ID:     id.NewSubscriptionID(),
		UserID: "u1",
		PlanID: id.NewPlanID(),
	})
	if err != nil {
		t.Fatal(err)
	}

	sess := bindReady(t, eng, Principal{ID: "u1", RoleClaim: "landlord"})
	if snap := sess.Snapshot(); snap.EntitlementState != StateFailed {
		t.Fatalf("expected failed entitlements for dangling plan reference, got %s", snap.EntitlementState)
	}
	dec := eng.Check(ctx, sess, AccessRequest{Feature: entitlement.FeatureAPIAccess})
	if dec.Code != CodeDenyUnverified {
		t.Fatalf("expected deny_unverified, got %s (%s)", dec.Outcome, dec.Code)
	}
}

// blockingStore holds every membership lookup until its context ends,
// simulating an unresponsive backend.
type blockingStore struct {
	store.Store
}

func (b *blockingStore) GetMembershipByUser(ctx context.Context, _ string) (*subuser.Membership, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestEnforce_PendingThenFailedClosed(t *testing.T) {
	ctx := context.Background()
	s := &blockingStore{Store: memory.New()}
	eng, err := NewEngine(
		WithStore(s),
		WithConfig(Config{ResolveTimeout: 200 * time.Millisecond}),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = eng.Stop(context.Background()) })

	sess, err := eng.Sessions().Bind(ctx, Principal{ID: "u1", RoleClaim: "landlord"})
	if err != nil {
		t.Fatal(err)
	}

	// The resolver is stuck in the store: nothing has settled, so
	// enforcement reports pending rather than a premature deny.
	if err := eng.Enforce(ctx, sess, AccessRequest{Role: RoleLandlord}); !errors.Is(err, ErrAccessPending) {
		t.Fatalf("expected ErrAccessPending, got %v", err)
	}

	// The timeout settles every stuck slot to Failed; the same request
	// now fails closed.
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sess.Ready(waitCtx); err != nil {
		t.Fatal(err)
	}
	err = eng.Enforce(ctx, sess, AccessRequest{Role: RoleLandlord})
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
	dec := eng.Check(ctx, sess, AccessRequest{Role: RoleLandlord})
	if dec.Code != CodeDenyUnverified {
		t.Fatalf("expected deny_unverified after timeout, got %s (%s)", dec.Outcome, dec.Code)
	}
}

func TestEnforce_DegradedIsPermitted(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	plan := seedPlan(t, s, "basic", map[entitlement.Feature]entitlement.Level{
		entitlement.FeatureAdvancedReporting: entitlement.LevelReadOnly,
	})
	err := s.SetSubscription(ctx, &entitlement.Subscription{
		ID:     id.NewSubscriptionID(),
		UserID: "u1",
		PlanID: plan.ID,
	})
	if err != nil {
		t.Fatal(err)
	}

	sess := bindReady(t, eng, Principal{ID: "u1", RoleClaim: "landlord"})
	req := AccessRequest{Feature: entitlement.FeatureAdvancedReporting, AllowDegraded: true}
	if err := eng.Enforce(ctx, sess, req); err != nil {
		t.Fatalf("expected degraded to be permitted, got %v", err)
	}
	dec := eng.Check(ctx, sess, req)
	if dec.Outcome != OutcomeDegraded || dec.Code != CodeDegradedReadOnly {
		t.Fatalf("expected degraded_read_only, got %s (%s)", dec.Outcome, dec.Code)
	}

	// Without the degraded escape hatch the same plan level denies.
	err = eng.Enforce(ctx, sess, AccessRequest{Feature: entitlement.FeatureAdvancedReporting})
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
}

// countingCache records cache traffic so tests can observe hit and
// store behavior without timing assumptions.
type countingCache struct {
	mu      sync.Mutex
	entries map[string]AccessDecision
	gets    int
	hits    int
	sets    int
}

func newCountingCache() *countingCache {
	return &countingCache{entries: make(map[string]AccessDecision)}
}

func (c *countingCache) Get(_ context.Context, identityKey string, req AccessRequest) (AccessDecision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	dec, ok := c.entries[identityKey+"|"+req.String()]
	if ok {
		c.hits++
	}
	return dec, ok
}

func (c *countingCache) Set(_ context.Context, identityKey string, req AccessRequest, dec AccessDecision) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.entries[identityKey+"|"+req.String()] = dec
}

func (c *countingCache) InvalidateIdentity(_ context.Context, identityKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if len(k) >= len(identityKey) && k[:len(identityKey)] == identityKey {
			delete(c.entries, k)
		}
	}
}

func TestCheck_CachesSettledDecisions(t *testing.T) {
	ctx := context.Background()
	cc := newCountingCache()
	eng, _ := newTestEngine(t, WithCache(cc))
	sess := bindReady(t, eng, Principal{ID: "u1", RoleClaim: "landlord"})

	req := AccessRequest{Role: RoleLandlord}
	first := eng.Check(ctx, sess, req)
	second := eng.Check(ctx, sess, req)
	if !first.Allowed() || !second.Allowed() {
		t.Fatalf("expected allow, got %s then %s", first.Outcome, second.Outcome)
	}
	if cc.sets != 1 {
		t.Fatalf("expected 1 cache store, got %d", cc.sets)
	}
	if cc.hits != 1 {
		t.Fatalf("expected 1 cache hit, got %d", cc.hits)
	}
}

func TestNotifyChanged_ReresolvesGrants(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	err := s.CreateMembership(ctx, &subuser.Membership{
		ID:        id.NewMembershipID(),
		AccountID: "acct1",
		UserID:    "u1",
	})
	if err != nil {
		t.Fatal(err)
	}
	grant := &permission.Grant{
		ID:        id.NewGrantID(),
		AccountID: "acct1",
		UserID:    "u1",
		Key:       permission.KeySendMessages,
		Granted:   true,
	}
	if err := s.SetGrant(ctx, grant); err != nil {
		t.Fatal(err)
	}

	sess := bindReady(t, eng, Principal{ID: "u1"})
	req := AccessRequest{Permission: permission.KeySendMessages}
	if dec := eng.Check(ctx, sess, req); !dec.Allowed() {
		t.Fatalf("expected allow before revocation, got %s (%s)", dec.Outcome, dec.Code)
	}

	// Revoke the grant and push invalidation at the session.
	grant.Granted = false
	if err := s.SetGrant(ctx, grant); err != nil {
		t.Fatal(err)
	}
	eng.Sessions().NotifyChanged(ctx, "u1")

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sess.Ready(waitCtx); err != nil {
		t.Fatal(err)
	}
	if dec := eng.Check(ctx, sess, req); dec.Code != CodeDenyPermission {
		t.Fatalf("expected deny_permission after revocation, got %s (%s)", dec.Outcome, dec.Code)
	}
}

func TestNotifyPlanChanged_ReresolvesSubscribers(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	plan := seedPlan(t, s, "pro", map[entitlement.Feature]entitlement.Level{
		entitlement.FeatureOnlinePayments: entitlement.LevelFull,
	})
	err := s.SetSubscription(ctx, &entitlement.Subscription{
		ID:     id.NewSubscriptionID(),
		UserID: "u1",
		PlanID: plan.ID,
	})
	if err != nil {
		t.Fatal(err)
	}

	sess := bindReady(t, eng, Principal{ID: "u1", RoleClaim: "landlord"})
	req := AccessRequest{Feature: entitlement.FeatureOnlinePayments}
	if dec := eng.Check(ctx, sess, req); !dec.Allowed() {
		t.Fatalf("expected allow before downgrade, got %s (%s)", dec.Outcome, dec.Code)
	}

	// Downgrade the feature in the plan table and push invalidation at
	// the plan's subscribers.
	plan.Features = map[entitlement.Feature]entitlement.Level{
		entitlement.FeatureOnlinePayments: entitlement.LevelNone,
	}
	if err := s.UpdatePlan(ctx, plan); err != nil {
		t.Fatal(err)
	}
	eng.Sessions().NotifyPlanChanged(ctx, plan.ID)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sess.Ready(waitCtx); err != nil {
		t.Fatal(err)
	}
	if dec := eng.Check(ctx, sess, req); dec.Code != CodeDenyNotEntitled {
		t.Fatalf("expected deny_not_entitled after downgrade, got %s (%s)", dec.Outcome, dec.Code)
	}
}

// stuckMembershipStore stalls the membership lookup for one user and
// answers normally for everyone else.
type stuckMembershipStore struct {
	store.Store
	userID string
}

func (b *stuckMembershipStore) GetMembershipByUser(ctx context.Context, userID string) (*subuser.Membership, error) {
	if userID == b.userID {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return b.Store.GetMembershipByUser(ctx, userID)
}

func TestReady_WakesAcrossIdentityChange(t *testing.T) {
	ctx := context.Background()
	s := &stuckMembershipStore{Store: memory.New(), userID: "u1"}
	eng, err := NewEngine(WithStore(s))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = eng.Stop(context.Background()) })

	sess, err := eng.Sessions().Bind(ctx, Principal{ID: "u1", RoleClaim: "landlord"})
	if err != nil {
		t.Fatal(err)
	}

	// Park a waiter while u1's resolution is stuck on the membership
	// lookup.
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- sess.Ready(waitCtx) }()

	// Give the waiter time to block, then swap to an identity that
	// resolves immediately. The parked waiter must wake with the swap
	// instead of sitting out its own deadline.
	time.Sleep(50 * time.Millisecond)
	if err := sess.SetPrincipal(ctx, Principal{ID: "u2", RoleClaim: "tenant"}); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("waiter returned %v after the new identity settled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter from before the identity change never woke")
	}
	if snap := sess.Snapshot(); snap.Role != RoleTenant {
		t.Fatalf("expected tenant after swap, got %s", snap.Role)
	}
}
