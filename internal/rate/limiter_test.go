package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/kestrelhq/authguard/cache/redcache"
)

func newTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(redcache.New(rdb), "rl"), mr
}

func TestAllowWithinBudget(t *testing.T) {
	lim, _ := newTestLimiter(t)
	ctx := context.Background()
	quota := Quota{Points: 3, Window: time.Minute}

	for i := 0; i < 3; i++ {
		d, err := lim.Allow(ctx, "/auth", "u1", quota)
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("request %d denied within budget", i+1)
		}
		if d.Remaining != quota.Points-(i+1) {
			t.Fatalf("remaining = %d, want %d", d.Remaining, quota.Points-(i+1))
		}
	}
}

func TestDenyOverBudget(t *testing.T) {
	lim, _ := newTestLimiter(t)
	ctx := context.Background()
	quota := Quota{Points: 2, Window: time.Minute}

	for i := 0; i < 2; i++ {
		if _, err := lim.Allow(ctx, "/auth", "u1", quota); err != nil {
			t.Fatalf("allow: %v", err)
		}
	}

	d, err := lim.Allow(ctx, "/auth", "u1", quota)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if d.Allowed {
		t.Fatal("request over budget allowed")
	}
	if d.Remaining != 0 {
		t.Fatalf("remaining = %d, want 0", d.Remaining)
	}
	if d.RetryAfter <= 0 || d.RetryAfter > quota.Window {
		t.Fatalf("retry after = %v, want (0, %v]", d.RetryAfter, quota.Window)
	}
}

func TestWindowExpiryResetsCounter(t *testing.T) {
	lim, mr := newTestLimiter(t)
	ctx := context.Background()
	quota := Quota{Points: 1, Window: time.Minute}

	if _, err := lim.Allow(ctx, "/auth", "u1", quota); err != nil {
		t.Fatalf("allow: %v", err)
	}
	if d, _ := lim.Allow(ctx, "/auth", "u1", quota); d.Allowed {
		t.Fatal("second request in window allowed")
	}

	mr.FastForward(time.Minute + time.Second)

	d, err := lim.Allow(ctx, "/auth", "u1", quota)
	if err != nil || !d.Allowed {
		t.Fatalf("post-expiry = (%+v, %v), want allowed", d, err)
	}
}

func TestIdentitiesAndRoutesAreIndependent(t *testing.T) {
	lim, _ := newTestLimiter(t)
	ctx := context.Background()
	quota := Quota{Points: 1, Window: time.Minute}

	if _, err := lim.Allow(ctx, "/auth", "u1", quota); err != nil {
		t.Fatalf("allow: %v", err)
	}

	if d, _ := lim.Allow(ctx, "/auth", "u2", quota); !d.Allowed {
		t.Fatal("another identity shares the counter")
	}
	if d, _ := lim.Allow(ctx, "/booking", "u1", quota); !d.Allowed {
		t.Fatal("another route class shares the counter")
	}
}

func TestReset(t *testing.T) {
	lim, _ := newTestLimiter(t)
	ctx := context.Background()
	quota := Quota{Points: 1, Window: time.Minute}

	if _, err := lim.Allow(ctx, "/auth", "u1", quota); err != nil {
		t.Fatalf("allow: %v", err)
	}
	if err := lim.Reset(ctx, "/auth", "u1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if d, _ := lim.Allow(ctx, "/auth", "u1", quota); !d.Allowed {
		t.Fatal("counter survived reset")
	}
}

func TestBackendFailure(t *testing.T) {
	lim, mr := newTestLimiter(t)
	mr.Close()

	_, err := lim.Allow(context.Background(), "/auth", "u1", Quota{Points: 1, Window: time.Minute})
	if !errors.Is(err, ErrBackend) {
		t.Fatalf("err = %v, want ErrBackend", err)
	}
}
