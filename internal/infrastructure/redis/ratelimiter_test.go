package redis

import (
	"context"
	"testing"
	"time"
)

func TestFixedWindowLimiter_RedisNil_Allows(t *testing.T) {
	l := NewFixedWindowLimiter(nil)
	if l.Enabled() {
		t.Fatalf("limiter without client should report disabled")
	}

	d, err := l.Allow(context.Background(), "k", 10, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("expected allowed when redis disabled")
	}
	if d.Remaining != 10 {
		t.Fatalf("unexpected remaining: %d", d.Remaining)
	}
}

func TestFixedWindowLimiter_LimitZero_Allows(t *testing.T) {
	l := NewFixedWindowLimiter(nil)

	d, _ := l.Allow(context.Background(), "k", 0, time.Minute)
	if !d.Allowed {
		t.Fatalf("limit=0 should allow")
	}
}

func TestFixedWindowLimiter_BlocksAfterLimit(t *testing.T) {
	mr, c := newMiniredis(t)
	l := NewFixedWindowLimiter(c)
	ctx := context.Background()
	key := LimiterKey("login", "10.0.0.1")

	for i := 1; i <= 3; i++ {
		d, err := l.Allow(ctx, key, 3, time.Minute)
		if err != nil {
			t.Fatalf("hit %d: %v", i, err)
		}
		if !d.Allowed || d.Remaining != 3-i {
			t.Fatalf("hit %d: unexpected decision %+v", i, d)
		}
	}

	d, err := l.Allow(ctx, key, 3, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Fatalf("4th hit should be blocked")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Fatalf("unexpected retry after: %v", d.RetryAfter)
	}

	// new window
	mr.FastForward(time.Minute + time.Second)
	d, err = l.Allow(ctx, key, 3, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed || d.Count != 1 {
		t.Fatalf("expected fresh window, got %+v", d)
	}
}

func TestFixedWindowLimiter_KeysAreIndependent(t *testing.T) {
	_, c := newMiniredis(t)
	l := NewFixedWindowLimiter(c)
	ctx := context.Background()

	_, _ = l.Allow(ctx, LimiterKey("login", "a"), 1, time.Minute)
	d, _ := l.Allow(ctx, LimiterKey("login", "b"), 1, time.Minute)
	if !d.Allowed {
		t.Fatalf("other identity should have its own bucket")
	}
}

func TestFixedWindowLimiter_RedisDown_ReturnsError(t *testing.T) {
	mr, c := newMiniredis(t)
	l := NewFixedWindowLimiter(c)
	mr.Close()

	if _, err := l.Allow(context.Background(), "k", 5, time.Minute); err == nil {
		t.Fatalf("expected error when redis is down")
	}
}
