package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kestrelhq/authguard"
)

// Store persists users, MFA material and audit events in PostgreSQL.
type Store struct {
	pool PgxPool
}

var _ authguard.Store = (*Store)(nil)

// NewStore returns a Store backed by the given pool.
func NewStore(db *DB) *Store {
	return &Store{pool: db.Pool}
}

/* ==================== USERS ==================== */

func (s *Store) GetUser(ctx context.Context, userID string) (authguard.UserRecord, error) {
	const q = `SELECT id, email, mfa_enabled FROM users WHERE id = $1`

	var rec authguard.UserRecord
	err := s.pool.QueryRow(ctx, q, userID).Scan(&rec.UserID, &rec.Email, &rec.MFAEnabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return authguard.UserRecord{}, authguard.ErrUserNotFound
	}
	if err != nil {
		return authguard.UserRecord{}, fmt.Errorf("get user: %w", err)
	}
	return rec, nil
}

func (s *Store) SetMFAEnabled(ctx context.Context, userID string, enabled bool) error {
	const q = `UPDATE users SET mfa_enabled = $2 WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q, userID, enabled)
	if err != nil {
		return fmt.Errorf("set mfa enabled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return authguard.ErrUserNotFound
	}
	return nil
}

/* ==================== TOTP SECRETS ==================== */

func (s *Store) GetTOTPSecret(ctx context.Context, userID string) (*authguard.TOTPRecord, error) {
	const q = `SELECT secret, created_at FROM totp_secrets WHERE user_id = $1`

	var rec authguard.TOTPRecord
	err := s.pool.QueryRow(ctx, q, userID).Scan(&rec.Secret, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, authguard.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get totp secret: %w", err)
	}
	return &rec, nil
}

func (s *Store) SetTOTPSecret(ctx context.Context, userID, secret string) error {
	const q = `
		INSERT INTO totp_secrets (user_id, secret, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET secret = $2, created_at = now()`

	if _, err := s.pool.Exec(ctx, q, userID, secret); err != nil {
		return fmt.Errorf("set totp secret: %w", err)
	}
	return nil
}

func (s *Store) DeleteTOTPSecret(ctx context.Context, userID string) error {
	const q = `DELETE FROM totp_secrets WHERE user_id = $1`

	if _, err := s.pool.Exec(ctx, q, userID); err != nil {
		return fmt.Errorf("delete totp secret: %w", err)
	}
	return nil
}

/* ==================== RECOVERY CODES ==================== */

// SaveRecoveryCodes replaces the full recovery code set for a user in one
// transaction. Consumed state of the old set is discarded with it.
func (s *Store) SaveRecoveryCodes(ctx context.Context, userID string, hashes [][32]byte) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM recovery_codes WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear recovery codes: %w", err)
	}
	const ins = `INSERT INTO recovery_codes (user_id, code_hash) VALUES ($1, $2)`
	for _, h := range hashes {
		if _, err := tx.Exec(ctx, ins, userID, h[:]); err != nil {
			return fmt.Errorf("insert recovery code: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ConsumeRecoveryCode marks a matching unconsumed code as used. The single
// UPDATE makes concurrent submissions of the same code race safely; exactly
// one caller observes true.
func (s *Store) ConsumeRecoveryCode(ctx context.Context, userID string, hash [32]byte) (bool, error) {
	const q = `
		UPDATE recovery_codes
		SET consumed_at = now()
		WHERE user_id = $1 AND code_hash = $2 AND consumed_at IS NULL`

	tag, err := s.pool.Exec(ctx, q, userID, hash[:])
	if err != nil {
		return false, fmt.Errorf("consume recovery code: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) CountRecoveryCodes(ctx context.Context, userID string) (int, error) {
	const q = `SELECT count(*) FROM recovery_codes WHERE user_id = $1 AND consumed_at IS NULL`

	var n int
	if err := s.pool.QueryRow(ctx, q, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count recovery codes: %w", err)
	}
	return n, nil
}

/* ==================== AUTHENTICATORS ==================== */

const authenticatorColumns = `id, user_id, name, credential_id, public_key,
	attestation_type, transports, sign_count, created_at, last_used_at`

func scanAuthenticator(row pgx.Row) (authguard.AuthenticatorRecord, error) {
	var rec authguard.AuthenticatorRecord
	var lastUsed *time.Time
	err := row.Scan(&rec.DeviceID, &rec.UserID, &rec.Name, &rec.CredentialID,
		&rec.PublicKey, &rec.AttestationType, &rec.Transports, &rec.SignCount,
		&rec.CreatedAt, &lastUsed)
	if err != nil {
		return authguard.AuthenticatorRecord{}, err
	}
	if lastUsed != nil {
		rec.LastUsedAt = *lastUsed
	}
	return rec, nil
}

func (s *Store) ListAuthenticators(ctx context.Context, userID string) ([]authguard.AuthenticatorRecord, error) {
	q := `SELECT ` + authenticatorColumns + ` FROM authenticators WHERE user_id = $1 ORDER BY created_at`

	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list authenticators: %w", err)
	}
	defer rows.Close()

	var out []authguard.AuthenticatorRecord
	for rows.Next() {
		rec, err := scanAuthenticator(rows)
		if err != nil {
			return nil, fmt.Errorf("scan authenticator: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list authenticators: %w", err)
	}
	return out, nil
}

func (s *Store) GetAuthenticator(ctx context.Context, userID, deviceID string) (*authguard.AuthenticatorRecord, error) {
	q := `SELECT ` + authenticatorColumns + ` FROM authenticators WHERE user_id = $1 AND id = $2`

	rec, err := scanAuthenticator(s.pool.QueryRow(ctx, q, userID, deviceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, authguard.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get authenticator: %w", err)
	}
	return &rec, nil
}

func (s *Store) AddAuthenticator(ctx context.Context, rec authguard.AuthenticatorRecord) error {
	const q = `
		INSERT INTO authenticators
			(id, user_id, name, credential_id, public_key, attestation_type,
			 transports, sign_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, q, rec.DeviceID, rec.UserID, rec.Name,
		rec.CredentialID, rec.PublicKey, rec.AttestationType, rec.Transports,
		rec.SignCount, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("add authenticator: %w", err)
	}
	return nil
}

// RenameAuthenticator updates the label of a device the user owns. Updating
// zero rows is not an error; callers treat non-owned devices as a no-op.
func (s *Store) RenameAuthenticator(ctx context.Context, userID, deviceID, name string) error {
	const q = `UPDATE authenticators SET name = $3 WHERE user_id = $1 AND id = $2`

	if _, err := s.pool.Exec(ctx, q, userID, deviceID, name); err != nil {
		return fmt.Errorf("rename authenticator: %w", err)
	}
	return nil
}

func (s *Store) DeleteAuthenticator(ctx context.Context, deviceID string) error {
	const q = `DELETE FROM authenticators WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q, deviceID)
	if err != nil {
		return fmt.Errorf("delete authenticator: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return authguard.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteAllAuthenticators(ctx context.Context, userID string) error {
	const q = `DELETE FROM authenticators WHERE user_id = $1`

	if _, err := s.pool.Exec(ctx, q, userID); err != nil {
		return fmt.Errorf("delete all authenticators: %w", err)
	}
	return nil
}

func (s *Store) UpdateAuthenticatorLastUsed(ctx context.Context, deviceID string, usedAt time.Time, signCount uint32) error {
	const q = `UPDATE authenticators SET last_used_at = $2, sign_count = $3 WHERE id = $1`

	if _, err := s.pool.Exec(ctx, q, deviceID, usedAt, signCount); err != nil {
		return fmt.Errorf("update authenticator last used: %w", err)
	}
	return nil
}

/* ==================== AUDIT ==================== */

func (s *Store) AppendAuditEvent(ctx context.Context, event authguard.AuditEvent) error {
	const q = `
		INSERT INTO audit_events
			(id, ts, user_id, action, device_id, route, success, ip, user_agent, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.pool.Exec(ctx, q, event.ID, event.Timestamp, event.UserID,
		event.Action, event.DeviceID, event.Route, event.Success, event.IP,
		event.UserAgent, event.Error)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}
