package cache

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/gatehouse"
	"github.com/xraph/gatehouse/entitlement"
)

func TestMemoryCacheHitMiss(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(WithTTL(time.Minute))

	req := gatehouse.AccessRequest{
		Role:    gatehouse.RoleLandlord,
		Feature: entitlement.FeatureAdvancedReporting,
	}
	dec := gatehouse.AccessDecision{Outcome: gatehouse.OutcomeAllow, Code: gatehouse.CodeAllow}

	// Miss
	_, ok := c.Get(ctx, "u1#1", req)
	if ok {
		t.Fatal("expected cache miss")
	}

	// Set + Hit
	c.Set(ctx, "u1#1", req, dec)
	got, ok := c.Get(ctx, "u1#1", req)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if !got.Allowed() {
		t.Fatal("expected allow")
	}

	// A different request shape is a different key.
	req.AllowDegraded = true
	if _, ok := c.Get(ctx, "u1#1", req); ok {
		t.Fatal("expected miss for different request")
	}
}

func TestMemoryCacheTTLExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(WithTTL(1 * time.Millisecond))

	req := gatehouse.AccessRequest{Role: gatehouse.RoleAdmin}
	c.Set(ctx, "u1#1", req, gatehouse.AccessDecision{Outcome: gatehouse.OutcomeAllow})
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get(ctx, "u1#1", req); ok {
		t.Fatal("expected cache miss after TTL expiry")
	}
}

func TestMemoryCacheInvalidateIdentity(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	reqA := gatehouse.AccessRequest{Role: gatehouse.RoleLandlord}
	reqB := gatehouse.AccessRequest{Feature: entitlement.FeatureAPIAccess}
	dec := gatehouse.AccessDecision{Outcome: gatehouse.OutcomeDeny}

	c.Set(ctx, "u1#1", reqA, dec)
	c.Set(ctx, "u1#1", reqB, dec)
	c.Set(ctx, "u2#7", reqA, dec)

	c.InvalidateIdentity(ctx, "u1#1")

	if _, ok := c.Get(ctx, "u1#1", reqA); ok {
		t.Fatal("expected u1 entries invalidated")
	}
	if _, ok := c.Get(ctx, "u1#1", reqB); ok {
		t.Fatal("expected u1 entries invalidated")
	}
	if _, ok := c.Get(ctx, "u2#7", reqA); !ok {
		t.Fatal("expected u2 entry to survive")
	}
}

func TestMemoryCacheMaxSizeEviction(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(WithMaxSize(2), WithTTL(time.Minute))

	c.Set(ctx, "u1#1", gatehouse.AccessRequest{Role: gatehouse.RoleTenant}, gatehouse.AccessDecision{})
	c.Set(ctx, "u2#1", gatehouse.AccessRequest{Role: gatehouse.RoleTenant}, gatehouse.AccessDecision{})
	c.Set(ctx, "u3#1", gatehouse.AccessRequest{Role: gatehouse.RoleTenant}, gatehouse.AccessDecision{})

	count := 0
	for _, key := range []string{"u1#1", "u2#1", "u3#1"} {
		if _, ok := c.Get(ctx, key, gatehouse.AccessRequest{Role: gatehouse.RoleTenant}); ok {
			count++
		}
	}
	if count > 2 {
		t.Fatalf("expected at most 2 entries after eviction, got %d", count)
	}
}
