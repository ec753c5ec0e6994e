package authguard

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/kestrelhq/authguard/cache/redcache"
)

func testCache(t *testing.T) *redcache.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return redcache.New(rdb)
}

func TestBuildRequiresAdapters(t *testing.T) {
	if _, err := New().WithCache(testCache(t)).Build(); err == nil {
		t.Error("build succeeded without a store")
	}
	if _, err := New().WithStore(newMemStore()).Build(); err == nil {
		t.Error("build succeeded without a cache")
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TOTP.SecretSize = 4

	_, err := New().
		WithConfig(cfg).
		WithStore(newMemStore()).
		WithCache(testCache(t)).
		Build()
	if err == nil {
		t.Fatal("invalid config accepted")
	}
}

func TestBuilderIsSingleUse(t *testing.T) {
	b := New().WithStore(newMemStore()).WithCache(testCache(t))

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	t.Cleanup(engine.Close)

	if _, err := b.Build(); err == nil {
		t.Fatal("second build succeeded")
	}
}

func TestWithVerifiedTTL(t *testing.T) {
	b := New().
		WithStore(newMemStore()).
		WithCache(testCache(t)).
		WithVerifiedTTL(5 * time.Minute)

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)

	if got := engine.config.MFASession.VerifiedTTL; got != 5*time.Minute {
		t.Fatalf("verified ttl = %v, want 5m", got)
	}
}

func TestConfigCloneIsolation(t *testing.T) {
	cfg := DefaultConfig()
	b := New().WithConfig(cfg).WithStore(newMemStore()).WithCache(testCache(t))

	// Mutating the caller's slice after WithConfig must not leak in.
	cfg.RateLimit.Routes[0].Points = 99999

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)

	if got := engine.config.RateLimit.QuotaFor("/auth").Points; got == 99999 {
		t.Fatal("config mutation leaked through the builder")
	}
}
