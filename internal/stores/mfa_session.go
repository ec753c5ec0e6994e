package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kestrelhq/authguard/cache"
)

// ErrSessionBackend wraps cache failures. Callers must treat it as
// "unverified": the MFA check fails closed.
var ErrSessionBackend = errors.New("mfa session backend unavailable")

const verifiedValue = "true"

// MFASessionStore tracks which user sessions have passed an MFA
// verification inside the configured window. The marker is the only
// state; absence means unverified. Expiry of the cache entry is the only
// transition back to unverified.
type MFASessionStore struct {
	kv     cache.Cache
	prefix string
	ttl    time.Duration
}

func NewMFASessionStore(kv cache.Cache, prefix string, ttl time.Duration) *MFASessionStore {
	if prefix == "" {
		prefix = "mfav"
	}
	return &MFASessionStore{
		kv:     kv,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *MFASessionStore) key(userID string) string {
	return s.prefix + ":" + userID
}

// MarkVerified writes the verified marker with the configured TTL.
func (s *MFASessionStore) MarkVerified(ctx context.Context, userID string) error {
	if err := s.kv.Set(ctx, s.key(userID), verifiedValue, s.ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionBackend, err)
	}
	return nil
}

// IsVerified reports whether a verified marker currently exists. Backend
// failures return an error, never a silent false positive or negative.
func (s *MFASessionStore) IsVerified(ctx context.Context, userID string) (bool, error) {
	val, err := s.kv.Get(ctx, s.key(userID))
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrSessionBackend, err)
	}
	return val == verifiedValue, nil
}

// Clear removes the marker. Not called on logout in the default wiring;
// markers normally expire by TTL only.
func (s *MFASessionStore) Clear(ctx context.Context, userID string) error {
	if err := s.kv.Delete(ctx, s.key(userID)); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionBackend, err)
	}
	return nil
}
