package authguard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/kestrelhq/authguard/cache/redcache"
)

// memStore is the in-package Store fake used by engine tests. It honors
// the contract the engine relies on, including atomic recovery code
// consumption and ownership-filtered renames.
type memStore struct {
	mu      sync.Mutex
	users   map[string]UserRecord
	totp    map[string]TOTPRecord
	codes   map[string]map[[32]byte]bool // hash -> consumed
	devices map[string]AuthenticatorRecord
	audits  []AuditEvent
}

func newMemStore() *memStore {
	return &memStore{
		users:   make(map[string]UserRecord),
		totp:    make(map[string]TOTPRecord),
		codes:   make(map[string]map[[32]byte]bool),
		devices: make(map[string]AuthenticatorRecord),
	}
}

func (s *memStore) addUser(userID, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = UserRecord{UserID: userID, Email: email}
}

func (s *memStore) GetUser(_ context.Context, userID string) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return user, nil
}

func (s *memStore) SetMFAEnabled(_ context.Context, userID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.MFAEnabled = enabled
	s.users[userID] = user
	return nil
}

func (s *memStore) GetTOTPSecret(_ context.Context, userID string) (*TOTPRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.totp[userID]
	if !ok {
		return nil, ErrNotFound
	}
	out := rec
	return &out, nil
}

func (s *memStore) SetTOTPSecret(_ context.Context, userID, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totp[userID] = TOTPRecord{Secret: secret, CreatedAt: time.Now()}
	return nil
}

func (s *memStore) DeleteTOTPSecret(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.totp, userID)
	return nil
}

func (s *memStore) SaveRecoveryCodes(_ context.Context, userID string, hashes [][32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[[32]byte]bool, len(hashes))
	for _, h := range hashes {
		set[h] = false
	}
	s.codes[userID] = set
	return nil
}

func (s *memStore) ConsumeRecoveryCode(_ context.Context, userID string, hash [32]byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.codes[userID]
	consumed, ok := set[hash]
	if !ok || consumed {
		return false, nil
	}
	set[hash] = true
	return true, nil
}

func (s *memStore) CountRecoveryCodes(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, consumed := range s.codes[userID] {
		if !consumed {
			n++
		}
	}
	return n, nil
}

func (s *memStore) ListAuthenticators(_ context.Context, userID string) ([]AuthenticatorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []AuthenticatorRecord
	for _, rec := range s.devices {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *memStore) GetAuthenticator(_ context.Context, userID, deviceID string) (*AuthenticatorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.devices[deviceID]
	if !ok || rec.UserID != userID {
		return nil, ErrNotFound
	}
	out := rec
	return &out, nil
}

func (s *memStore) AddAuthenticator(_ context.Context, record AuthenticatorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[record.DeviceID] = record
	return nil
}

func (s *memStore) RenameAuthenticator(_ context.Context, userID, deviceID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.devices[deviceID]
	if !ok || rec.UserID != userID {
		return nil // ownership filtered, silent no-op
	}
	rec.Name = name
	s.devices[deviceID] = rec
	return nil
}

func (s *memStore) DeleteAuthenticator(_ context.Context, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[deviceID]; !ok {
		return ErrNotFound
	}
	delete(s.devices, deviceID)
	return nil
}

func (s *memStore) DeleteAllAuthenticators(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.devices {
		if rec.UserID == userID {
			delete(s.devices, id)
		}
	}
	return nil
}

func (s *memStore) UpdateAuthenticatorLastUsed(_ context.Context, deviceID string, usedAt time.Time, signCount uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.devices[deviceID]
	if !ok {
		return ErrNotFound
	}
	rec.LastUsedAt = usedAt
	rec.SignCount = signCount
	s.devices[deviceID] = rec
	return nil
}

func (s *memStore) AppendAuditEvent(_ context.Context, event AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, event)
	return nil
}

// testEngine bundles an engine with the fakes behind it.
type testEngine struct {
	engine *Engine
	store  *memStore
	redis  *miniredis.Miniredis
	sink   *ChannelSink
}

func newTestEngine(t *testing.T, mutate func(*Config)) *testEngine {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	store := newMemStore()
	sink := NewChannelSink(64)

	engine, err := New().
		WithConfig(cfg).
		WithStore(store).
		WithCache(redcache.New(rdb)).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEngine{engine: engine, store: store, redis: mr, sink: sink}
}

// waitAudit blocks for the next dispatched audit event.
func (te *testEngine) waitAudit(t *testing.T) AuditEvent {
	t.Helper()
	select {
	case ev := <-te.sink.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit event")
		return AuditEvent{}
	}
}
