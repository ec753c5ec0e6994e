package authguard

import (
	"context"
	"errors"
)

// SetupTOTP generates a fresh secret for the user and persists it,
// replacing any previous one (at most one active secret per user). The
// MFA flag is not set until the first successful verification.
func (e *Engine) SetupTOTP(ctx context.Context, userID string, req RequestInfo) (*TOTPSetup, error) {
	if e == nil || e.store == nil || e.totp == nil {
		return nil, ErrEngineNotReady
	}
	if userID == "" {
		return nil, ErrValidation
	}

	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, ErrStoreUnavailable
	}

	account := user.Email
	if account == "" {
		account = user.UserID
	}
	setup, err := e.totp.GenerateSecret(account)
	if err != nil {
		return nil, ErrInternal
	}

	if err := e.store.SetTOTPSecret(ctx, userID, setup.Secret); err != nil {
		return nil, ErrStoreUnavailable
	}

	e.emitAudit(ctx, AuditActionMFASetup, true, userID, "", req, nil)
	return setup, nil
}

// DisableTOTP turns MFA off for the user. The caller must present a
// currently valid token; destroying the secret also clears the verified
// marker so the session does not outlive the factor.
func (e *Engine) DisableTOTP(ctx context.Context, userID, token string, req RequestInfo) error {
	if e == nil || e.store == nil || e.totp == nil {
		return ErrEngineNotReady
	}
	if userID == "" || token == "" {
		return ErrValidation
	}

	record, err := e.store.GetTOTPSecret(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrMFANotConfigured
		}
		return ErrStoreUnavailable
	}
	if record == nil || record.Secret == "" {
		return ErrMFANotConfigured
	}

	if !e.totp.Verify(record.Secret, token, e.now()) {
		e.metricInc(MetricTOTPVerifyFailure)
		e.emitAudit(ctx, AuditActionDisable, false, userID, "", req, ErrMFAVerificationFailed)
		return ErrMFAVerificationFailed
	}

	if err := e.store.DeleteTOTPSecret(ctx, userID); err != nil {
		return ErrStoreUnavailable
	}
	if err := e.store.SetMFAEnabled(ctx, userID, false); err != nil {
		return ErrStoreUnavailable
	}
	// Best-effort: a stale marker only shortens re-auth friction and
	// expires on its own.
	_ = e.sessions.Clear(ctx, userID)

	e.emitAudit(ctx, AuditActionDisable, true, userID, "", req, nil)
	return nil
}
