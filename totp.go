package authguard

import (
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// totpManager generates and verifies time-based one-time codes. It is
// purely functional: no adapter calls, no retained state.
type totpManager struct {
	config TOTPConfig
}

func newTOTPManager(cfg TOTPConfig) *totpManager {
	return &totpManager{config: cfg}
}

// GenerateSecret produces a fresh random secret and the otpauth:// URI to
// encode into a QR code.
func (m *totpManager) GenerateSecret(account string) (*TOTPSetup, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.config.Issuer,
		AccountName: account,
		Period:      m.config.Period,
		SecretSize:  m.config.SecretSize,
		Digits:      otp.Digits(m.config.Digits),
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, err
	}
	return &TOTPSetup{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
	}, nil
}

// Verify checks a submitted code against the stored secret for the current
// and adjacent time steps. Fails closed: any malformed input returns false.
func (m *totpManager) Verify(secret, code string, now time.Time) bool {
	trimmed := strings.TrimSpace(code)
	if secret == "" || len(trimmed) != m.config.Digits || !isNumericString(trimmed) {
		return false
	}

	ok, err := totp.ValidateCustom(trimmed, secret, now, totp.ValidateOpts{
		Period:    m.config.Period,
		Skew:      m.config.Skew,
		Digits:    otp.Digits(m.config.Digits),
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false
	}
	return ok
}

// Code computes the expected code for a secret at a given time. Test
// helper for property checks; not part of the verification path.
func (m *totpManager) Code(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    m.config.Period,
		Skew:      0,
		Digits:    otp.Digits(m.config.Digits),
		Algorithm: otp.AlgorithmSHA1,
	})
}

func isNumericString(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
