// Package memory implements the credential store on process-local maps.
// It is a reference adapter for development and tests; nothing about it
// survives a restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/kestrelhq/authguard"
)

// Store is a thread-safe in-memory credential store.
type Store struct {
	mu      sync.Mutex
	users   map[string]authguard.UserRecord
	totp    map[string]authguard.TOTPRecord
	codes   map[string]map[[32]byte]bool
	devices map[string]authguard.AuthenticatorRecord
	audits  []authguard.AuditEvent
}

var _ authguard.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:   make(map[string]authguard.UserRecord),
		totp:    make(map[string]authguard.TOTPRecord),
		codes:   make(map[string]map[[32]byte]bool),
		devices: make(map[string]authguard.AuthenticatorRecord),
	}
}

// PutUser creates or replaces a user record. The identity service owns
// user lifecycle in production; this is the development stand-in.
func (s *Store) PutUser(user authguard.UserRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.UserID] = user
}

func (s *Store) GetUser(_ context.Context, userID string) (authguard.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return authguard.UserRecord{}, authguard.ErrUserNotFound
	}
	return user, nil
}

func (s *Store) SetMFAEnabled(_ context.Context, userID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return authguard.ErrUserNotFound
	}
	user.MFAEnabled = enabled
	s.users[userID] = user
	return nil
}

func (s *Store) GetTOTPSecret(_ context.Context, userID string) (*authguard.TOTPRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.totp[userID]
	if !ok {
		return nil, authguard.ErrNotFound
	}
	out := rec
	return &out, nil
}

func (s *Store) SetTOTPSecret(_ context.Context, userID, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totp[userID] = authguard.TOTPRecord{Secret: secret, CreatedAt: time.Now()}
	return nil
}

func (s *Store) DeleteTOTPSecret(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.totp, userID)
	return nil
}

func (s *Store) SaveRecoveryCodes(_ context.Context, userID string, hashes [][32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[[32]byte]bool, len(hashes))
	for _, h := range hashes {
		set[h] = false
	}
	s.codes[userID] = set
	return nil
}

func (s *Store) ConsumeRecoveryCode(_ context.Context, userID string, hash [32]byte) (bool, error) {
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

func (s *Store) CountRecoveryCodes(_ context.Context, userID string) (int, error) {
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

func (s *Store) ListAuthenticators(_ context.Context, userID string) ([]authguard.AuthenticatorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []authguard.AuthenticatorRecord
	for _, rec := range s.devices {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *Store) GetAuthenticator(_ context.Context, userID, deviceID string) (*authguard.AuthenticatorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.devices[deviceID]
	if !ok || rec.UserID != userID {
		return nil, authguard.ErrNotFound
	}
	out := rec
	return &out, nil
}

func (s *Store) AddAuthenticator(_ context.Context, record authguard.AuthenticatorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[record.DeviceID] = record
	return nil
}

func (s *Store) RenameAuthenticator(_ context.Context, userID, deviceID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.devices[deviceID]
	if !ok || rec.UserID != userID {
		return nil
	}
	rec.Name = name
	s.devices[deviceID] = rec
	return nil
}

func (s *Store) DeleteAuthenticator(_ context.Context, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[deviceID]; !ok {
		return authguard.ErrNotFound
	}
	delete(s.devices, deviceID)
	return nil
}

func (s *Store) DeleteAllAuthenticators(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.devices {
		if rec.UserID == userID {
			delete(s.devices, id)
		}
	}
	return nil
}

func (s *Store) UpdateAuthenticatorLastUsed(_ context.Context, deviceID string, usedAt time.Time, signCount uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.devices[deviceID]
	if !ok {
		return authguard.ErrNotFound
	}
	rec.LastUsedAt = usedAt
	rec.SignCount = signCount
	s.devices[deviceID] = rec
	return nil
}

func (s *Store) AppendAuditEvent(_ context.Context, event authguard.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, event)
	return nil
}

// AuditEvents returns a copy of the recorded audit log.
func (s *Store) AuditEvents() []authguard.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]authguard.AuditEvent(nil), s.audits...)
}
