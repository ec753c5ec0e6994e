package authguard

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"math/big"
	"strings"
)

// recoveryCodeAlphabet avoids easily confused characters (0/O, 1/I/L).
const recoveryCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateRecoveryCodes creates a fresh set of one-time backup codes for
// the user and persists their hashes as a full replacement: every
// previously issued code is invalidated atomically. The plaintext codes
// are returned exactly once and cannot be retrieved again.
func (e *Engine) GenerateRecoveryCodes(ctx context.Context, userID string, req RequestInfo) ([]string, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if userID == "" {
		return nil, ErrValidation
	}

	count := e.config.RecoveryCodes.Count
	length := e.config.RecoveryCodes.Length

	hashes := make([][32]byte, 0, count)
	codes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		raw, err := newRecoveryCode(length)
		if err != nil {
			return nil, ErrInternal
		}
		hashes = append(hashes, recoveryCodeHash(userID, canonicalizeRecoveryCode(raw)))
		codes = append(codes, formatRecoveryCode(raw))
	}

	if err := e.store.SaveRecoveryCodes(ctx, userID, hashes); err != nil {
		return nil, ErrStoreUnavailable
	}

	e.metricInc(MetricRecoveryCodesRegenerated)
	e.emitAudit(ctx, AuditActionRegenerate, true, userID, "", req, nil)
	return codes, nil
}

// VerifyRecoveryCode normalizes and consumes a backup code. Consumption
// is atomic in the store: concurrent attempts with the same code yield
// exactly one success. A successful consumption counts as an MFA
// verification and writes the verified marker.
func (e *Engine) VerifyRecoveryCode(ctx context.Context, userID, code string, req RequestInfo) (bool, error) {
	if e == nil || e.store == nil || e.sessions == nil {
		return false, ErrEngineNotReady
	}
	if userID == "" {
		return false, ErrValidation
	}

	canonical := canonicalizeRecoveryCode(code)
	if canonical == "" {
		e.metricInc(MetricRecoveryCodeFailed)
		return false, nil
	}

	ok, err := e.store.ConsumeRecoveryCode(ctx, userID, recoveryCodeHash(userID, canonical))
	if err != nil {
		return false, ErrStoreUnavailable
	}
	if !ok {
		e.metricInc(MetricRecoveryCodeFailed)
		e.emitAudit(ctx, AuditActionRecovery, false, userID, "", req, ErrMFAVerificationFailed)
		return false, nil
	}

	if err := e.markVerified(ctx, userID); err != nil {
		return false, err
	}

	e.metricInc(MetricRecoveryCodeUsed)
	e.emitAudit(ctx, AuditActionRecovery, true, userID, "", req, nil)
	return true, nil
}

// RemainingRecoveryCodes reports how many codes are still unused.
func (e *Engine) RemainingRecoveryCodes(ctx context.Context, userID string) (int, error) {
	if e == nil || e.store == nil {
		return 0, ErrEngineNotReady
	}
	if userID == "" {
		return 0, ErrValidation
	}

	n, err := e.store.CountRecoveryCodes(ctx, userID)
	if err != nil {
		return 0, ErrStoreUnavailable
	}
	return n, nil
}

func newRecoveryCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(recoveryCodeAlphabet))))
		if err != nil {
			return "", err
		}
		b.WriteByte(recoveryCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

func formatRecoveryCode(code string) string {
	n := len(code)
	if n < 8 {
		return code
	}
	mid := n / 2
	return code[:mid] + "-" + code[mid:]
}

// canonicalizeRecoveryCode strips separators and case before comparison,
// so codes survive being read back over the phone.
func canonicalizeRecoveryCode(code string) string {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

// recoveryCodeHash salts with the user ID so identical codes issued to
// different users never share a stored hash.
func recoveryCodeHash(userID, canonicalCode string) [32]byte {
	data := make([]byte, 0, len(userID)+1+len(canonicalCode))
	data = append(data, userID...)
	data = append(data, 0)
	data = append(data, canonicalCode...)
	return sha256.Sum256(data)
}
