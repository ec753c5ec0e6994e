package authguard

import (
	"context"
	"errors"
)

// dummyTOTPSecret is verified against when a user has no stored secret,
// so "no secret" and "wrong token" take comparable time.
const dummyTOTPSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQGEZA"

// IsMFAEnabled reads the persisted MFA flag for the user.
func (e *Engine) IsMFAEnabled(ctx context.Context, userID string) (bool, error) {
	if e == nil || e.store == nil {
		return false, ErrEngineNotReady
	}
	if userID == "" {
		return false, ErrValidation
	}

	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUserNotFound) {
			return false, ErrUserNotFound
		}
		return false, ErrStoreUnavailable
	}
	return user.MFAEnabled, nil
}

// VerifyMFA drives the per-user verification state machine.
//
// With an empty token it is a session-resume check: it reports whether a
// verified marker currently exists, without any cryptographic work.
// Backend failures fail closed (reported as unverified, with the error).
//
// With a token it validates against the stored TOTP secret. On success
// the verified marker is written with the configured TTL and, if this was
// the user's first successful verification, the MFA flag is persisted.
// On failure nothing is written.
func (e *Engine) VerifyMFA(ctx context.Context, userID, token string, req RequestInfo) (bool, error) {
	if e == nil || e.store == nil || e.sessions == nil {
		return false, ErrEngineNotReady
	}
	if userID == "" {
		return false, ErrValidation
	}

	if token == "" {
		verified, err := e.sessions.IsVerified(ctx, userID)
		if err != nil {
			return false, ErrCacheUnavailable
		}
		if verified {
			e.metricInc(MetricMFASessionResumed)
		}
		return verified, nil
	}

	record, err := e.store.GetTOTPSecret(ctx, userID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return false, ErrStoreUnavailable
	}

	secret := dummyTOTPSecret
	hasSecret := record != nil && record.Secret != ""
	if hasSecret {
		secret = record.Secret
	}

	ok := e.totp.Verify(secret, token, e.now())
	if !ok || !hasSecret {
		e.metricInc(MetricTOTPVerifyFailure)
		e.emitAudit(ctx, AuditActionVerify, false, userID, "", req, ErrMFAVerificationFailed)
		return false, nil
	}

	if err := e.sessions.MarkVerified(ctx, userID); err != nil {
		return false, ErrCacheUnavailable
	}
	if err := e.ensureMFAEnabled(ctx, userID); err != nil {
		return false, err
	}

	e.metricInc(MetricTOTPVerifySuccess)
	e.emitAudit(ctx, AuditActionVerify, true, userID, "", req, nil)
	return true, nil
}

// ClearMFAVerification drops the verified marker. The default wiring
// never calls this; markers expire by TTL only. It exists for callers
// that want stricter session binding on logout.
func (e *Engine) ClearMFAVerification(ctx context.Context, userID string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	if err := e.sessions.Clear(ctx, userID); err != nil {
		return ErrCacheUnavailable
	}
	return nil
}

func (e *Engine) markVerified(ctx context.Context, userID string) error {
	if err := e.sessions.MarkVerified(ctx, userID); err != nil {
		return ErrCacheUnavailable
	}
	return nil
}

func (e *Engine) ensureMFAEnabled(ctx context.Context, userID string) error {
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return ErrStoreUnavailable
	}
	if user.MFAEnabled {
		return nil
	}
	if err := e.store.SetMFAEnabled(ctx, userID, true); err != nil {
		return ErrStoreUnavailable
	}
	return nil
}
