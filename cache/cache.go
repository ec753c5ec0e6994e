// Package cache defines the expiring key-value adapter contract consumed
// by the security core. The cache is the single source of truth for all
// ephemeral state: rate-limit counters, MFA verified markers, and
// in-flight WebAuthn ceremony sessions.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get and TTL when the key is absent or expired.
var ErrMiss = errors.New("cache: key not found")

// Cache is the narrow contract over a distributed expiring key-value
// store. IncrWithTTL must be atomic across concurrent callers and attach
// the TTL only when the key is newly created; this is what makes
// concurrent rate-limit decisions race-free.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
}
