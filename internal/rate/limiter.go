package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/kestrelhq/authguard/cache"
)

// Quota is one route class budget: Points requests per Window.
type Quota struct {
	Points int
	Window time.Duration
}

// Decision is the outcome of consuming one point. RetryAfter is only
// meaningful when Allowed is false and is derived from the remaining TTL
// of the window key, so it never exceeds the window duration.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter enforces per-(route class, client identity) quotas on counters
// in the expiring cache.
//
// The algorithm is a counter window: the first request in a window sets
// the counter to one with TTL equal to the window; later requests
// increment without touching the TTL. This admits bursts across window
// boundaries of up to twice the budget. Acceptable for abuse deterrence;
// a token bucket would be needed for billing-grade smoothness.
type Limiter struct {
	kv     cache.Cache
	prefix string
}

func New(kv cache.Cache, prefix string) *Limiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &Limiter{
		kv:     kv,
		prefix: prefix,
	}
}

func (l *Limiter) key(routeClass, identity string) string {
	return l.prefix + ":" + routeClass + ":" + identity
}

// Allow consumes one point and reports the decision. A non-nil error
// means the backend failed; callers on protected routes must treat that
// as a deny.
//
// The increment is atomic, so of two concurrent requests racing at the
// threshold exactly one observes the crossing count and is the one
// denied.
func (l *Limiter) Allow(ctx context.Context, routeClass, identity string, quota Quota) (Decision, error) {
	key := l.key(routeClass, identity)

	count, err := l.kv.IncrWithTTL(ctx, key, quota.Window)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrBackend, err)
	}

	if count > int64(quota.Points) {
		retryAfter := quota.Window
		if ttl, err := l.kv.TTL(ctx, key); err == nil && ttl > 0 {
			retryAfter = ttl
		}
		return Decision{
			Allowed:    false,
			Limit:      quota.Points,
			Remaining:  0,
			RetryAfter: retryAfter,
		}, nil
	}

	return Decision{
		Allowed:   true,
		Limit:     quota.Points,
		Remaining: quota.Points - int(count),
	}, nil
}

// Reset clears the counter for a (route class, identity) pair. Used by
// tests and by operators clearing a lockout.
func (l *Limiter) Reset(ctx context.Context, routeClass, identity string) error {
	if err := l.kv.Delete(ctx, l.key(routeClass, identity)); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}
