package stores

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/redis/go-redis/v9"

	"github.com/kestrelhq/authguard/cache"
	"github.com/kestrelhq/authguard/cache/redcache"
)

func newCeremonyStore(t *testing.T, ttl time.Duration) (*CeremonyStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewCeremonyStore(redcache.New(rdb), "wan", ttl), mr
}

func TestCeremonySaveAndTake(t *testing.T) {
	s, _ := newCeremonyStore(t, 5*time.Minute)
	ctx := context.Background()

	session := &webauthn.SessionData{
		Challenge: "c29tZS1jaGFsbGVuZ2U",
		UserID:    []byte("u1"),
	}
	if err := s.Save(ctx, "u1", "register", session); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Take(ctx, "u1", "register")
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if got.Challenge != session.Challenge || string(got.UserID) != "u1" {
		t.Fatalf("round trip = %+v", got)
	}

	// Single use: a second Take fails.
	if _, err := s.Take(ctx, "u1", "register"); !errors.Is(err, ErrCeremonyNotFound) {
		t.Fatalf("replay err = %v, want ErrCeremonyNotFound", err)
	}
}

func TestCeremonyPurposesAreSeparate(t *testing.T) {
	s, _ := newCeremonyStore(t, 5*time.Minute)
	ctx := context.Background()

	if err := s.Save(ctx, "u1", "register", &webauthn.SessionData{Challenge: "a"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := s.Take(ctx, "u1", "login"); !errors.Is(err, ErrCeremonyNotFound) {
		t.Fatalf("cross-purpose take = %v, want ErrCeremonyNotFound", err)
	}
}

func TestCeremonyExpires(t *testing.T) {
	s, mr := newCeremonyStore(t, 5*time.Minute)
	ctx := context.Background()

	if err := s.Save(ctx, "u1", "login", &webauthn.SessionData{Challenge: "a"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	mr.FastForward(5*time.Minute + time.Second)

	if _, err := s.Take(ctx, "u1", "login"); !errors.Is(err, ErrCeremonyNotFound) {
		t.Fatalf("expired take = %v, want ErrCeremonyNotFound", err)
	}
}

// deleteFailingCache reads and writes through, but cannot delete.
type deleteFailingCache struct {
	cache.Cache
	deleteErr error
}

func (c deleteFailingCache) Delete(context.Context, string) error {
	return c.deleteErr
}

func TestCeremonyTakeFailsWhenDeleteFails(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	kv := deleteFailingCache{
		Cache:     redcache.New(rdb),
		deleteErr: errors.New("connection reset"),
	}
	s := NewCeremonyStore(kv, "wan", 5*time.Minute)
	ctx := context.Background()

	session := &webauthn.SessionData{Challenge: "Y2hhbGxlbmdl", UserID: []byte("u1")}
	if err := s.Save(ctx, "u1", "login", session); err != nil {
		t.Fatalf("save: %v", err)
	}

	// A challenge that cannot be invalidated must not be handed out.
	if _, err := s.Take(ctx, "u1", "login"); !errors.Is(err, ErrCeremonyBackend) {
		t.Fatalf("err = %v, want ErrCeremonyBackend", err)
	}
}
