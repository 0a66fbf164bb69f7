package gatehouse

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRegistry_BindReturnsSameSession(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	a, err := eng.Sessions().Bind(ctx, Principal{ID: "u1", RoleClaim: "landlord"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := eng.Sessions().Bind(ctx, Principal{ID: "u1", RoleClaim: "landlord"})
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("expected the same session for the same principal")
	}

	got, ok := eng.Sessions().Get("u1")
	if !ok || got != a {
		t.Fatal("expected Get to find the bound session")
	}
}

func TestRegistry_BindRejectsZeroPrincipal(t *testing.T) {
	eng, _ := newTestEngine(t)
	_, err := eng.Sessions().Bind(context.Background(), Principal{})
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestRegistry_BindChangedClaimReresolves(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	sess := bindReady(t, eng, Principal{ID: "u1", RoleClaim: "landlord"})
	if snap := sess.Snapshot(); snap.Role != RoleLandlord {
		t.Fatalf("expected landlord, got %s", snap.Role)
	}
	gen := sess.Snapshot().Generation

	// The identity source now says tenant: same session, new identity
	// epoch.
	again, err := eng.Sessions().Bind(ctx, Principal{ID: "u1", RoleClaim: "tenant"})
	if err != nil {
		t.Fatal(err)
	}
	if again != sess {
		t.Fatal("expected the existing session to be reused")
	}
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sess.Ready(waitCtx); err != nil {
		t.Fatal(err)
	}
	snap := sess.Snapshot()
	if snap.Role != RoleTenant {
		t.Fatalf("expected tenant after claim change, got %s", snap.Role)
	}
	if snap.Generation == gen {
		t.Fatal("expected generation bump on identity change")
	}
}

func TestRegistry_UnbindClosesSession(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	sess := bindReady(t, eng, Principal{ID: "u1", RoleClaim: "landlord"})

	eng.Sessions().Unbind(ctx, "u1")
	if _, ok := eng.Sessions().Get("u1"); ok {
		t.Fatal("expected session removed from registry")
	}
	if err := sess.Reresolve(ctx); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if err := sess.Impersonate(ctx, Principal{ID: "t1"}); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestSession_SetPrincipalZeroLogsOut(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	sess := bindReady(t, eng, Principal{ID: "u1", RoleClaim: "landlord"})

	if err := sess.SetPrincipal(ctx, Principal{}); err != nil {
		t.Fatal(err)
	}
	if eff := sess.Effective(); !eff.Principal.IsZero() {
		t.Fatalf("expected zero effective identity, got %+v", eff)
	}
	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := sess.Ready(waitCtx); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestSession_SubscribeNotifies(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	sess := bindReady(t, eng, Principal{ID: "u1", RoleClaim: "landlord"})

	var calls atomic.Int64
	unsub := sess.Subscribe(func() { calls.Add(1) })

	if err := sess.Reresolve(ctx); err != nil {
		t.Fatal(err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sess.Ready(waitCtx); err != nil {
		t.Fatal(err)
	}
	if calls.Load() == 0 {
		t.Fatal("expected subscriber to be notified")
	}

	unsub()
	// Let any in-flight notification from the settled refresh drain.
	time.Sleep(50 * time.Millisecond)
	before := calls.Load()
	if err := sess.Reresolve(ctx); err != nil {
		t.Fatal(err)
	}
	if err := sess.Ready(waitCtx); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != before {
		t.Fatal("expected no notifications after unsubscribe")
	}
}

func TestSession_SnapshotIsolatedFromLaterChanges(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	sess := bindReady(t, eng, Principal{ID: "u1", RoleClaim: "landlord"})

	snap := sess.Snapshot()
	if err := sess.SetPrincipal(ctx, Principal{ID: "u2", RoleClaim: "tenant"}); err != nil {
		t.Fatal(err)
	}

	// The earlier snapshot still describes the earlier identity.
	if snap.Identity.Principal.ID != "u1" || snap.Role != RoleLandlord {
		t.Fatalf("snapshot mutated: %+v", snap)
	}
	if snap.Generation == sess.Snapshot().Generation {
		t.Fatal("expected identity change to bump the generation")
	}
}
