package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/gatehouse/auditlog"
	"github.com/xraph/gatehouse/entitlement"
	"github.com/xraph/gatehouse/id"
	"github.com/xraph/gatehouse/permission"
	"github.com/xraph/gatehouse/store"
	"github.com/xraph/gatehouse/subuser"
)

// Compile-time check that *Store implements store.Store.
var _ store.Store = (*Store)(nil)

func TestMembershipCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()

	m := &subuser.Membership{
		ID:        id.NewMembershipID(),
		AccountID: "acct1",
		UserID:    "u1",
		Label:     "bookkeeper",
		CreatedAt: time.Now(),
	}

	// Create
	if err := s.CreateMembership(ctx, m); err != nil {
		t.Fatal(err)
	}

	// Duplicate user is rejected
	dup := &subuser.Membership{ID: id.NewMembershipID(), AccountID: "acct2", UserID: "u1"}
	if err := s.CreateMembership(ctx, dup); !errors.Is(err, subuser.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// Get
	got, err := s.GetMembership(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Label != "bookkeeper" {
		t.Fatalf("expected bookkeeper, got %s", got.Label)
	}

	// GetByUser
	got, err = s.GetMembershipByUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != m.ID {
		t.Fatal("user lookup mismatch")
	}

	// Update
	m.Suspended = true
	if err := s.UpdateMembership(ctx, m); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetMembership(ctx, m.ID)
	if !got.Suspended {
		t.Fatal("update failed")
	}

	// List by suspension state
	suspended := true
	list, _ := s.ListMemberships(ctx, &subuser.ListFilter{AccountID: "acct1", Suspended: &suspended})
	if len(list) != 1 {
		t.Fatalf("expected 1 membership, got %d", len(list))
	}

	// Count
	count, _ := s.CountMemberships(ctx, &subuser.ListFilter{AccountID: "acct1"})
	if count != 1 {
		t.Fatalf("expected count 1, got %d", count)
	}

	// Delete
	if err := s.DeleteMembership(ctx, m.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetMembership(ctx, m.ID); !errors.Is(err, subuser.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestGrantUpsert(t *testing.T) {
	ctx := context.Background()
	s := New()

	g := &permission.Grant{
		ID:        id.NewGrantID(),
		AccountID: "acct1",
		UserID:    "u1",
		Key:       permission.KeyViewFinancials,
		Granted:   true,
	}
	if err := s.SetGrant(ctx, g); err != nil {
		t.Fatal(err)
	}

	// Setting the same (user, key) again replaces the row in place.
	again := &permission.Grant{
		ID:      id.NewGrantID(),
		UserID:  "u1",
		Key:     permission.KeyViewFinancials,
		Granted: false,
	}
	if err := s.SetGrant(ctx, again); err != nil {
		t.Fatal(err)
	}
	if again.ID != g.ID {
		t.Fatal("upsert should keep the original grant ID")
	}

	list, _ := s.ListGrants(ctx, &permission.ListFilter{UserID: "u1"})
	if len(list) != 1 {
		t.Fatalf("expected 1 grant after upsert, got %d", len(list))
	}
	if list[0].Granted {
		t.Fatal("upsert should have revoked the grant")
	}
}

func TestGetSetForUser(t *testing.T) {
	ctx := context.Background()
	s := New()

	grants := []*permission.Grant{
		{ID: id.NewGrantID(), AccountID: "acct1", UserID: "u1", Key: permission.KeyViewFinancials, Granted: true},
		{ID: id.NewGrantID(), AccountID: "acct1", UserID: "u1", Key: permission.KeySendMessages, Granted: false},
		{ID: id.NewGrantID(), AccountID: "acct1", UserID: "u2", Key: permission.KeyManageProperties, Granted: true},
	}
	for _, g := range grants {
		if err := s.SetGrant(ctx, g); err != nil {
			t.Fatal(err)
		}
	}

	set, err := s.GetSetForUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(set) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(set))
	}
	if !set.Granted(permission.KeyViewFinancials) {
		t.Fatal("view_financials should be granted")
	}
	if set.Granted(permission.KeySendMessages) {
		t.Fatal("send_messages is explicitly revoked")
	}
	// Absent key defaults to not granted.
	if set.Granted(permission.KeyManageSubUsers) {
		t.Fatal("absent key should not be granted")
	}

	if err := s.DeleteGrantsByUser(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	set, _ = s.GetSetForUser(ctx, "u1")
	if len(set) != 0 {
		t.Fatal("expected empty set after delete by user")
	}

	if err := s.DeleteGrantsByAccount(ctx, "acct1"); err != nil {
		t.Fatal(err)
	}
	list, _ := s.ListGrants(ctx, nil)
	if len(list) != 0 {
		t.Fatal("expected no grants after delete by account")
	}
}

func TestPlanCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()

	p := &entitlement.Plan{
		ID:   id.NewPlanID(),
		Slug: "premium",
		Name: "Premium",
		Features: map[entitlement.Feature]entitlement.Level{
			entitlement.FeatureAPIAccess:         entitlement.LevelFull,
			entitlement.FeatureAdvancedReporting: entitlement.LevelReadOnly,
		},
	}
	if err := s.CreatePlan(ctx, p); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetPlan(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Level(entitlement.FeatureAPIAccess) != entitlement.LevelFull {
		t.Fatal("api_access should be full")
	}

	got, err = s.GetPlanBySlug(ctx, "premium")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != p.ID {
		t.Fatal("slug lookup mismatch")
	}

	p.Name = "Premium Plus"
	if err := s.UpdatePlan(ctx, p); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetPlan(ctx, p.ID)
	if got.Name != "Premium Plus" {
		t.Fatal("update failed")
	}

	list, _ := s.ListPlans(ctx, &entitlement.ListFilter{Search: "premium"})
	if len(list) != 1 {
		t.Fatalf("expected 1 plan, got %d", len(list))
	}

	if err := s.DeletePlan(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetPlan(ctx, p.ID); !errors.Is(err, entitlement.ErrPlanNotFound) {
		t.Fatalf("expected ErrPlanNotFound after delete, got %v", err)
	}
}

func TestPlanCopyIsolation(t *testing.T) {
	ctx := context.Background()
	s := New()

	p := &entitlement.Plan{
		ID:   id.NewPlanID(),
		Slug: "basic",
		Name: "Basic",
		Features: map[entitlement.Feature]entitlement.Level{
			entitlement.FeatureOnlinePayments: entitlement.LevelFull,
		},
	}
	if err := s.CreatePlan(ctx, p); err != nil {
		t.Fatal(err)
	}

	got, _ := s.GetPlan(ctx, p.ID)
	got.Features[entitlement.FeatureOnlinePayments] = entitlement.LevelNone

	fresh, _ := s.GetPlan(ctx, p.ID)
	if fresh.Level(entitlement.FeatureOnlinePayments) != entitlement.LevelFull {
		t.Fatal("mutating a returned plan must not affect the store")
	}
}

func TestSubscriptionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	sub := &entitlement.Subscription{
		ID:     id.NewSubscriptionID(),
		UserID: "u1",
		PlanID: id.NewPlanID(),
	}
	if err := s.SetSubscription(ctx, sub); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetSubscriptionByUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if got.PlanID != sub.PlanID {
		t.Fatal("plan mismatch")
	}

	// Re-setting keeps the existing subscription ID.
	newPlan := id.NewPlanID()
	replacement := &entitlement.Subscription{ID: id.NewSubscriptionID(), UserID: "u1", PlanID: newPlan}
	if err := s.SetSubscription(ctx, replacement); err != nil {
		t.Fatal(err)
	}
	if replacement.ID != sub.ID {
		t.Fatal("upsert should keep the original subscription ID")
	}
	got, _ = s.GetSubscriptionByUser(ctx, "u1")
	if got.PlanID != newPlan {
		t.Fatal("plan change not applied")
	}

	if err := s.DeleteSubscriptionByUser(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetSubscriptionByUser(ctx, "u1"); !errors.Is(err, entitlement.ErrSubscriptionNotFound) {
		t.Fatalf("expected ErrSubscriptionNotFound, got %v", err)
	}
}

func TestListSubscriptionsByPlan(t *testing.T) {
	ctx := context.Background()
	s := New()

	planA, planB := id.NewPlanID(), id.NewPlanID()
	for _, sub := range []*entitlement.Subscription{
		{ID: id.NewSubscriptionID(), UserID: "u2", PlanID: planA},
		{ID: id.NewSubscriptionID(), UserID: "u1", PlanID: planA},
		{ID: id.NewSubscriptionID(), UserID: "u3", PlanID: planB},
	} {
		if err := s.SetSubscription(ctx, sub); err != nil {
			t.Fatal(err)
		}
	}

	subs, err := s.ListSubscriptionsByPlan(ctx, planA)
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 2 || subs[0].UserID != "u1" || subs[1].UserID != "u2" {
		t.Fatalf("expected [u1 u2], got %d subscriptions", len(subs))
	}

	subs, err = s.ListSubscriptionsByPlan(ctx, id.NewPlanID())
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 0 {
		t.Fatalf("expected no subscribers for an unused plan, got %d", len(subs))
	}
}

func TestAuditEntryQuery(t *testing.T) {
	ctx := context.Background()
	s := New()

	now := time.Now()
	entries := []*auditlog.Entry{
		{ID: id.NewAuditEntryID(), Kind: auditlog.KindDecision, ActorID: "u1", Outcome: "deny", CreatedAt: now.Add(-2 * time.Hour)},
		{ID: id.NewAuditEntryID(), Kind: auditlog.KindDecision, ActorID: "u1", Outcome: "allow", CreatedAt: now.Add(-time.Hour)},
		{ID: id.NewAuditEntryID(), Kind: auditlog.KindImpersonationStart, ActorID: "admin1", TargetID: "u1", CreatedAt: now},
	}
	for _, e := range entries {
		if err := s.CreateAuditEntry(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.GetAuditEntry(ctx, entries[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Outcome != "deny" {
		t.Fatal("mismatch")
	}

	list, _ := s.ListAuditEntries(ctx, &auditlog.QueryFilter{ActorID: "u1"})
	if len(list) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(list))
	}
	// Newest first.
	if list[0].Outcome != "allow" {
		t.Fatal("expected newest entry first")
	}

	list, _ = s.ListAuditEntries(ctx, &auditlog.QueryFilter{Kind: auditlog.KindImpersonationStart})
	if len(list) != 1 || list[0].TargetID != "u1" {
		t.Fatal("kind filter failed")
	}

	count, _ := s.CountAuditEntries(ctx, &auditlog.QueryFilter{Outcome: "deny"})
	if count != 1 {
		t.Fatalf("expected count 1, got %d", count)
	}

	purged, err := s.PurgeAuditEntries(ctx, now.Add(-30*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if purged != 2 {
		t.Fatalf("expected 2 purged, got %d", purged)
	}
	count, _ = s.CountAuditEntries(ctx, nil)
	if count != 1 {
		t.Fatalf("expected 1 remaining, got %d", count)
	}
}

func TestListPagination(t *testing.T) {
	ctx := context.Background()
	s := New()

	base := time.Now()
	for i := 0; i < 5; i++ {
		m := &subuser.Membership{
			ID:        id.NewMembershipID(),
			AccountID: "acct1",
			UserID:    string(rune('a' + i)),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := s.CreateMembership(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	list, _ := s.ListMemberships(ctx, &subuser.ListFilter{AccountID: "acct1", Limit: 2, Offset: 1})
	if len(list) != 2 {
		t.Fatalf("expected 2 memberships, got %d", len(list))
	}
	if list[0].UserID != "b" {
		t.Fatalf("expected offset to skip the first row, got user %s", list[0].UserID)
	}

	list, _ = s.ListMemberships(ctx, &subuser.ListFilter{AccountID: "acct1", Offset: 10})
	if len(list) != 0 {
		t.Fatal("offset past end should return nothing")
	}
}
