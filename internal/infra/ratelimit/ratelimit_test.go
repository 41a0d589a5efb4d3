package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agentbazaar/bazaar/internal/domain"
	"github.com/agentbazaar/bazaar/internal/infra/kv"
)

func newLimiter(t *testing.T, rate int, cooldown time.Duration) (*Limiter, *kv.Memory, func(time.Duration)) {
	t.Helper()
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := kv.NewMemory()
	store.SetClock(func() time.Time { return current })

	l := New(store, rate, cooldown)
	l.SetClock(func() time.Time { return current })

	advance := func(d time.Duration) { current = current.Add(d) }
	return l, store, advance
}

const testHash = "deadbeefdeadbeefdeadbeefdeadbeef"

func TestAllowRequestUnderLimit(t *testing.T) {
	l, _, _ := newLimiter(t, 5, 0)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := l.AllowRequest(ctx, testHash, "api"); err != nil {
			t.Fatalf("request %d rejected: %v", i+1, err)
		}
	}
}

func TestAllowRequestOverLimit(t *testing.T) {
	l, _, _ := newLimiter(t, 3, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.AllowRequest(ctx, testHash, "api"); err != nil {
			t.Fatalf("request %d rejected: %v", i+1, err)
		}
	}

	err := l.AllowRequest(ctx, testHash, "api")
	var rateErr *domain.RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("4th request error = %v, want RateLimitError", err)
	}
	if rateErr.Limit != 3 {
		t.Errorf("Limit = %d, want 3", rateErr.Limit)
	}
	if rateErr.RetryAfter <= 0 || rateErr.RetryAfter > time.Minute {
		t.Errorf("RetryAfter = %v, want within (0, 1m]", rateErr.RetryAfter)
	}
}

func TestAllowRequestWindowResets(t *testing.T) {
	l, _, advance := newLimiter(t, 2, 0)
	ctx := context.Background()

	l.AllowRequest(ctx, testHash, "api")
	l.AllowRequest(ctx, testHash, "api")
	if err := l.AllowRequest(ctx, testHash, "api"); err == nil {
		t.Fatal("3rd request should be rejected")
	}

	advance(time.Minute)
	if err := l.AllowRequest(ctx, testHash, "api"); err != nil {
		t.Errorf("request in next window rejected: %v", err)
	}
}

func TestAllowRequestIsolatesCredentials(t *testing.T) {
	l, _, _ := newLimiter(t, 1, 0)
	ctx := context.Background()

	if err := l.AllowRequest(ctx, testHash, "api"); err != nil {
		t.Fatalf("first credential rejected: %v", err)
	}
	if err := l.AllowRequest(ctx, "0000111122223333aaaa", "api"); err != nil {
		t.Errorf("other credential should have its own window: %v", err)
	}
}

func TestCooldownLifecycle(t *testing.T) {
	l, _, advance := newLimiter(t, 60, 5*time.Minute)
	ctx := context.Background()

	// No marker: allowed.
	if err := l.CheckCooldown(ctx, "agent_1", domain.ContentPost); err != nil {
		t.Fatalf("fresh agent blocked: %v", err)
	}

	if err := l.MarkCreated(ctx, "agent_1", domain.ContentPost); err != nil {
		t.Fatalf("MarkCreated: %v", err)
	}

	err := l.CheckCooldown(ctx, "agent_1", domain.ContentPost)
	var cdErr *domain.CooldownError
	if !errors.As(err, &cdErr) {
		t.Fatalf("inside window error = %v, want CooldownError", err)
	}
	if cdErr.Kind != domain.ContentPost {
		t.Errorf("Kind = %s, want post", cdErr.Kind)
	}
	if cdErr.Remaining <= 0 || cdErr.Remaining > 5*time.Minute {
		t.Errorf("Remaining = %v, want within (0, 5m]", cdErr.Remaining)
	}

	// Kinds are independent.
	if err := l.CheckCooldown(ctx, "agent_1", domain.ContentReply); err != nil {
		t.Errorf("reply cooldown should be separate from post: %v", err)
	}
	// Agents are independent.
	if err := l.CheckCooldown(ctx, "agent_2", domain.ContentPost); err != nil {
		t.Errorf("other agent should not share the cooldown: %v", err)
	}

	advance(5*time.Minute + time.Second)
	if err := l.CheckCooldown(ctx, "agent_1", domain.ContentPost); err != nil {
		t.Errorf("after window expiry: %v", err)
	}
}

func TestCooldownMalformedMarker(t *testing.T) {
	l, store, _ := newLimiter(t, 60, 5*time.Minute)
	ctx := context.Background()

	store.Set(ctx, kv.KeyCooldown("post", "agent_1"), "not-a-number", 0)
	if err := l.CheckCooldown(ctx, "agent_1", domain.ContentPost); err != nil {
		t.Errorf("malformed marker should not lock the agent out: %v", err)
	}
}
