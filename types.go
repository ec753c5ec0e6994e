package authguard

import (
	"context"
	"time"
)

// UserRecord is the slice of the externally owned identity record this
// core reads and writes. Everything else about the user lives in the
// identity service.
type UserRecord struct {
	UserID     string
	Email      string
	MFAEnabled bool
}

// TOTPRecord is the persisted shared secret for a user. At most one
// active record exists per user.
type TOTPRecord struct {
	Secret    string // base32, no padding
	CreatedAt time.Time
}

// AuthenticatorRecord is one registered WebAuthn credential as stored.
// PublicKey and Attestation are opaque to this core; they are produced and
// consumed by the WebAuthn protocol library.
type AuthenticatorRecord struct {
	DeviceID        string
	UserID          string
	Name            string
	CredentialID    []byte
	PublicKey       []byte
	AttestationType string
	Transports      []string
	SignCount       uint32
	CreatedAt       time.Time
	LastUsedAt      time.Time
}

// DeviceInfo is the caller-facing view of an authenticator. It never
// carries raw key material.
type DeviceInfo struct {
	DeviceID   string    `json:"id"`
	Name       string    `json:"name"`
	Transports []string  `json:"transports,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	LastUsedAt time.Time `json:"lastUsedAt,omitzero"`
}

// TOTPSetup is returned once per setup request. The secret is never
// retrievable again through this API.
type TOTPSetup struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioningUri"`
}

// RequestInfo carries the client attributes recorded on audit events.
type RequestInfo struct {
	IP        string
	UserAgent string
}

// Store is the narrow contract over persistent storage for users, TOTP
// secrets, WebAuthn authenticators, recovery codes, and the audit log.
// Implementations must make ConsumeRecoveryCode atomic: concurrent calls
// with the same code must yield exactly one true.
type Store interface {
	GetUser(ctx context.Context, userID string) (UserRecord, error)
	SetMFAEnabled(ctx context.Context, userID string, enabled bool) error

	GetTOTPSecret(ctx context.Context, userID string) (*TOTPRecord, error)
	SetTOTPSecret(ctx context.Context, userID, secret string) error
	DeleteTOTPSecret(ctx context.Context, userID string) error

	SaveRecoveryCodes(ctx context.Context, userID string, hashes [][32]byte) error
	ConsumeRecoveryCode(ctx context.Context, userID string, hash [32]byte) (bool, error)
	CountRecoveryCodes(ctx context.Context, userID string) (int, error)

	ListAuthenticators(ctx context.Context, userID string) ([]AuthenticatorRecord, error)
	GetAuthenticator(ctx context.Context, userID, deviceID string) (*AuthenticatorRecord, error)
	AddAuthenticator(ctx context.Context, record AuthenticatorRecord) error
	RenameAuthenticator(ctx context.Context, userID, deviceID, name string) error
	DeleteAuthenticator(ctx context.Context, deviceID string) error
	DeleteAllAuthenticators(ctx context.Context, userID string) error
	UpdateAuthenticatorLastUsed(ctx context.Context, deviceID string, usedAt time.Time, signCount uint32) error

	AppendAuditEvent(ctx context.Context, event AuditEvent) error
}

