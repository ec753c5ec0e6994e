package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/kestrelhq/authguard/cache"
)

var (
	ErrCeremonyNotFound = errors.New("webauthn ceremony not found")
	ErrCeremonyBackend  = errors.New("webauthn ceremony backend unavailable")
)

// CeremonyStore keeps the challenge state of in-flight WebAuthn
// ceremonies in the expiring cache, keyed by user and purpose
// ("register" or "login"). A ceremony is single-use: Take removes it.
type CeremonyStore struct {
	kv     cache.Cache
	prefix string
	ttl    time.Duration
}

func NewCeremonyStore(kv cache.Cache, prefix string, ttl time.Duration) *CeremonyStore {
	if prefix == "" {
		prefix = "wan"
	}
	return &CeremonyStore{
		kv:     kv,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *CeremonyStore) key(userID, purpose string) string {
	return s.prefix + ":" + purpose + ":" + userID
}

func (s *CeremonyStore) Save(ctx context.Context, userID, purpose string, session *webauthn.SessionData) error {
	encoded, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCeremonyBackend, err)
	}
	if err := s.kv.Set(ctx, s.key(userID, purpose), string(encoded), s.ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrCeremonyBackend, err)
	}
	return nil
}

// Take retrieves and deletes the ceremony state. A replayed Finish call
// therefore fails with ErrCeremonyNotFound. If the delete cannot be
// confirmed the state must not be used, or the challenge stays replayable.
func (s *CeremonyStore) Take(ctx context.Context, userID, purpose string) (*webauthn.SessionData, error) {
	key := s.key(userID, purpose)

	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil, ErrCeremonyNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrCeremonyBackend, err)
	}
	if err := s.kv.Delete(ctx, key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCeremonyBackend, err)
	}

	var session webauthn.SessionData
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCeremonyBackend, err)
	}
	return &session, nil
}
