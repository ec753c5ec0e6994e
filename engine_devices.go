package authguard

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
)

const (
	ceremonyRegister = "register"
	ceremonyLogin    = "login"

	defaultDeviceName = "Security key"
	maxDeviceNameLen  = 64
)

// webauthnUser adapts a user record and its stored credentials to the
// protocol library's user contract.
type webauthnUser struct {
	record UserRecord
	creds  []webauthn.Credential
}

func (u *webauthnUser) WebAuthnID() []byte { return []byte(u.record.UserID) }

func (u *webauthnUser) WebAuthnName() string {
	if u.record.Email != "" {
		return u.record.Email
	}
	return u.record.UserID
}

func (u *webauthnUser) WebAuthnDisplayName() string { return u.WebAuthnName() }

func (u *webauthnUser) WebAuthnCredentials() []webauthn.Credential { return u.creds }

// ListDevices returns the caller-facing view of the user's registered
// authenticators. Raw key material never leaves the store layer.
func (e *Engine) ListDevices(ctx context.Context, userID string) ([]DeviceInfo, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if userID == "" {
		return nil, ErrValidation
	}

	records, err := e.store.ListAuthenticators(ctx, userID)
	if err != nil {
		return nil, ErrStoreUnavailable
	}

	out := make([]DeviceInfo, 0, len(records))
	for _, rec := range records {
		out = append(out, deviceInfoFromRecord(rec))
	}
	return out, nil
}

// RenameDevice updates the display name of a device owned by the user.
// The update is ownership-filtered in the store query: renaming a device
// the user does not own is a silent no-op, not an error.
func (e *Engine) RenameDevice(ctx context.Context, userID, deviceID, newName string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	newName = strings.TrimSpace(newName)
	if userID == "" || deviceID == "" || newName == "" || len(newName) > maxDeviceNameLen {
		return ErrValidation
	}

	if err := e.store.RenameAuthenticator(ctx, userID, deviceID, newName); err != nil {
		return ErrStoreUnavailable
	}
	return nil
}

// RevokeDevice deletes one credential after verifying ownership. A device
// that does not belong to the user yields ErrNotFound and leaves the
// store unchanged.
func (e *Engine) RevokeDevice(ctx context.Context, userID, deviceID string, req RequestInfo) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if userID == "" || deviceID == "" {
		return ErrValidation
	}

	record, err := e.store.GetAuthenticator(ctx, userID, deviceID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrStoreUnavailable
	}
	if record == nil || record.UserID != userID {
		return ErrNotFound
	}

	if err := e.store.DeleteAuthenticator(ctx, deviceID); err != nil {
		return ErrStoreUnavailable
	}

	e.metricInc(MetricDeviceRevoked)
	e.emitAudit(ctx, AuditActionRevoke, true, userID, deviceID, req, nil)
	return nil
}

// RevokeAllDevices deletes every credential owned by the user and writes
// one audit event per deleted device, preserving per-device
// auditability. Returns the number of devices removed.
func (e *Engine) RevokeAllDevices(ctx context.Context, userID string, req RequestInfo) (int, error) {
	if e == nil || e.store == nil {
		return 0, ErrEngineNotReady
	}
	if userID == "" {
		return 0, ErrValidation
	}

	records, err := e.store.ListAuthenticators(ctx, userID)
	if err != nil {
		return 0, ErrStoreUnavailable
	}
	if len(records) == 0 {
		return 0, nil
	}

	if err := e.store.DeleteAllAuthenticators(ctx, userID); err != nil {
		return 0, ErrStoreUnavailable
	}

	for _, rec := range records {
		e.metricInc(MetricDeviceRevoked)
		e.emitAudit(ctx, AuditActionRevokeAll, true, userID, rec.DeviceID, req, nil)
	}
	return len(records), nil
}

// UpdateDeviceLastUsed records a successful authentication with the
// device. Best-effort: failures are swallowed so they never block the
// authentication response.
func (e *Engine) UpdateDeviceLastUsed(ctx context.Context, deviceID string, signCount uint32) {
	if e == nil || e.store == nil || deviceID == "" {
		return
	}
	_ = e.store.UpdateAuthenticatorLastUsed(ctx, deviceID, e.now(), signCount)
}

// BeginDeviceRegistration starts a WebAuthn registration ceremony. The
// challenge state is held in the expiring cache; the returned options go
// to the browser unchanged.
func (e *Engine) BeginDeviceRegistration(ctx context.Context, userID string) (*protocol.CredentialCreation, error) {
	if e == nil || e.webauthn == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if userID == "" {
		return nil, ErrValidation
	}

	user, records, err := e.loadWebAuthnUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	exclusions := make([]protocol.CredentialDescriptor, 0, len(records))
	for _, cred := range user.creds {
		exclusions = append(exclusions, protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: cred.ID,
		})
	}

	options, session, err := e.webauthn.BeginRegistration(user, webauthn.WithExclusions(exclusions))
	if err != nil {
		return nil, ErrCeremonyFailed
	}
	if err := e.ceremonies.Save(ctx, userID, ceremonyRegister, session); err != nil {
		return nil, ErrCacheUnavailable
	}
	return options, nil
}

// FinishDeviceRegistration completes the registration ceremony from the
// browser's attestation response and persists the new credential.
func (e *Engine) FinishDeviceRegistration(ctx context.Context, userID, deviceName string, r *http.Request, req RequestInfo) (*DeviceInfo, error) {
	if e == nil || e.webauthn == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if userID == "" {
		return nil, ErrValidation
	}

	user, _, err := e.loadWebAuthnUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	session, err := e.ceremonies.Take(ctx, userID, ceremonyRegister)
	if err != nil {
		return nil, ErrCeremonyFailed
	}

	credential, err := e.webauthn.FinishRegistration(user, *session, r)
	if err != nil {
		e.emitAudit(ctx, AuditActionRegister, false, userID, "", req, ErrCeremonyFailed)
		return nil, ErrCeremonyFailed
	}

	deviceName = strings.TrimSpace(deviceName)
	if deviceName == "" {
		deviceName = defaultDeviceName
	}

	record := AuthenticatorRecord{
		DeviceID:        uuid.NewString(),
		UserID:          userID,
		Name:            deviceName,
		CredentialID:    credential.ID,
		PublicKey:       credential.PublicKey,
		AttestationType: credential.AttestationType,
		Transports:      transportStrings(credential.Transport),
		SignCount:       credential.Authenticator.SignCount,
		CreatedAt:       e.now(),
	}
	if err := e.store.AddAuthenticator(ctx, record); err != nil {
		return nil, ErrStoreUnavailable
	}

	e.metricInc(MetricDeviceRegistered)
	e.emitAudit(ctx, AuditActionRegister, true, userID, record.DeviceID, req, nil)

	info := deviceInfoFromRecord(record)
	return &info, nil
}

// BeginDeviceLogin starts an authentication ceremony against the user's
// registered credentials.
func (e *Engine) BeginDeviceLogin(ctx context.Context, userID string) (*protocol.CredentialAssertion, error) {
	if e == nil || e.webauthn == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if userID == "" {
		return nil, ErrValidation
	}

	user, records, err := e.loadWebAuthnUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}

	options, session, err := e.webauthn.BeginLogin(user)
	if err != nil {
		return nil, ErrCeremonyFailed
	}
	if err := e.ceremonies.Save(ctx, userID, ceremonyLogin, session); err != nil {
		return nil, ErrCacheUnavailable
	}
	return options, nil
}

// FinishDeviceLogin completes the authentication ceremony. On success the
// device's last-used timestamp is updated best-effort and the MFA
// verified marker is written: a hardware assertion counts as a second
// factor.
func (e *Engine) FinishDeviceLogin(ctx context.Context, userID string, r *http.Request, req RequestInfo) (*DeviceInfo, error) {
	if e == nil || e.webauthn == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if userID == "" {
		return nil, ErrValidation
	}

	user, records, err := e.loadWebAuthnUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	session, err := e.ceremonies.Take(ctx, userID, ceremonyLogin)
	if err != nil {
		return nil, ErrCeremonyFailed
	}

	credential, err := e.webauthn.FinishLogin(user, *session, r)
	if err != nil {
		e.emitAudit(ctx, AuditActionVerify, false, userID, "", req, ErrCeremonyFailed)
		return nil, ErrMFAVerificationFailed
	}

	var matched *AuthenticatorRecord
	for i := range records {
		if string(records[i].CredentialID) == string(credential.ID) {
			matched = &records[i]
			break
		}
	}
	if matched == nil {
		return nil, ErrNotFound
	}

	e.UpdateDeviceLastUsed(ctx, matched.DeviceID, credential.Authenticator.SignCount)
	if err := e.markVerified(ctx, userID); err != nil {
		return nil, err
	}

	e.metricInc(MetricDeviceLoginSuccess)
	e.emitAudit(ctx, AuditActionVerify, true, userID, matched.DeviceID, req, nil)

	info := deviceInfoFromRecord(*matched)
	info.LastUsedAt = e.now()
	return &info, nil
}

func (e *Engine) loadWebAuthnUser(ctx context.Context, userID string) (*webauthnUser, []AuthenticatorRecord, error) {
	userRecord, err := e.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUserNotFound) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, ErrStoreUnavailable
	}

	records, err := e.store.ListAuthenticators(ctx, userID)
	if err != nil {
		return nil, nil, ErrStoreUnavailable
	}

	creds := make([]webauthn.Credential, 0, len(records))
	for _, rec := range records {
		creds = append(creds, webauthn.Credential{
			ID:              rec.CredentialID,
			PublicKey:       rec.PublicKey,
			AttestationType: rec.AttestationType,
			Transport:       transportValues(rec.Transports),
			Authenticator: webauthn.Authenticator{
				SignCount: rec.SignCount,
			},
		})
	}

	return &webauthnUser{record: userRecord, creds: creds}, records, nil
}

func deviceInfoFromRecord(rec AuthenticatorRecord) DeviceInfo {
	return DeviceInfo{
		DeviceID:   rec.DeviceID,
		Name:       rec.Name,
		Transports: rec.Transports,
		CreatedAt:  rec.CreatedAt,
		LastUsedAt: rec.LastUsedAt,
	}
}

func transportStrings(transports []protocol.AuthenticatorTransport) []string {
	out := make([]string, 0, len(transports))
	for _, t := range transports {
		out = append(out, string(t))
	}
	return out
}

func transportValues(transports []string) []protocol.AuthenticatorTransport {
	out := make([]protocol.AuthenticatorTransport, 0, len(transports))
	for _, t := range transports {
		out = append(out, protocol.AuthenticatorTransport(t))
	}
	return out
}
