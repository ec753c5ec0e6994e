package authguard

import "errors"

var (
	// ErrEngineNotReady is returned when an Engine method is called before
	// Build wired its dependencies.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrValidation indicates malformed or missing input.
	ErrValidation = errors.New("invalid request")
	// ErrUnauthorized indicates a missing or invalid caller session.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound indicates the resource is absent or not owned by the caller.
	ErrNotFound = errors.New("not found")
	// ErrUserNotFound indicates the user record could not be loaded.
	ErrUserNotFound = errors.New("user not found")
	// ErrMFARequired indicates a sensitive route was called without a
	// current MFA verification.
	ErrMFARequired = errors.New("mfa verification required")
	// ErrMFAVerificationFailed indicates a bad TOTP token or recovery code.
	ErrMFAVerificationFailed = errors.New("mfa verification failed")
	// ErrMFANotConfigured indicates the user has no active TOTP secret.
	ErrMFANotConfigured = errors.New("mfa not configured")
	// ErrRateLimited indicates the per-route quota was exceeded.
	ErrRateLimited = errors.New("rate limited")
	// ErrStoreUnavailable indicates the credential store adapter failed.
	ErrStoreUnavailable = errors.New("credential store unavailable")
	// ErrCacheUnavailable indicates the expiring cache adapter failed.
	ErrCacheUnavailable = errors.New("cache unavailable")
	// ErrCeremonyFailed indicates a WebAuthn challenge-response exchange
	// could not be completed.
	ErrCeremonyFailed = errors.New("webauthn ceremony failed")
	// ErrInternal indicates an unclassified adapter or dependency failure.
	ErrInternal = errors.New("internal error")
)
