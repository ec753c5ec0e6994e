package authguard

import (
	"errors"
	"strings"
	"time"
)

// Config is the immutable configuration tree for the security core.
// Configure it before [Builder.Build]; the engine never mutates it.
type Config struct {
	TOTP          TOTPConfig
	RecoveryCodes RecoveryCodeConfig
	MFASession    MFASessionConfig
	RateLimit     RateLimitConfig
	WebAuthn      WebAuthnConfig
	Audit         AuditConfig
}

/*
====================================
TOTP CONFIG
====================================
*/

// TOTPConfig tunes the time-based one-time password engine.
type TOTPConfig struct {
	Issuer     string
	Period     uint // seconds per time step
	Digits     int
	Skew       uint // accepted steps either side of now
	SecretSize uint // bytes of secret entropy
}

/*
====================================
RECOVERY CODE CONFIG
====================================
*/

// RecoveryCodeConfig tunes one-time backup code generation.
type RecoveryCodeConfig struct {
	Count  int
	Length int
}

/*
====================================
MFA SESSION CONFIG
====================================
*/

// MFASessionConfig controls the verified-session marker.
type MFASessionConfig struct {
	// VerifiedTTL is how long a successful verification is honored.
	// Expiry of the marker is the only transition back to unverified;
	// there is no logout invalidation.
	VerifiedTTL time.Duration
	CachePrefix string
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RouteQuota is one row of the static per-route quota table.
type RouteQuota struct {
	// Prefix is matched against the resolved route class by longest
	// prefix. Classes carry the request path plus an optional
	// ":<action>" suffix.
	Prefix string
	Points int
	Window time.Duration
}

// RateLimitConfig holds the quota table and the fallback quota applied
// to unmatched routes.
type RateLimitConfig struct {
	Routes      []RouteQuota
	Default     RouteQuota
	CachePrefix string
}

// QuotaFor resolves the quota for a route class by longest-prefix match,
// falling back to the default quota.
func (c RateLimitConfig) QuotaFor(routeClass string) RouteQuota {
	best := c.Default
	bestLen := -1
	for _, q := range c.Routes {
		if strings.HasPrefix(routeClass, q.Prefix) && len(q.Prefix) > bestLen {
			best = q
			bestLen = len(q.Prefix)
		}
	}
	return best
}

/*
====================================
WEBAUTHN CONFIG
====================================
*/

// WebAuthnConfig identifies the relying party for credential ceremonies.
type WebAuthnConfig struct {
	RPID          string
	RPDisplayName string
	RPOrigins     []string
	// ChallengeTTL bounds how long an in-flight ceremony may take.
	ChallengeTTL time.Duration
	CachePrefix  string
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// DefaultConfig returns the configuration the engine starts from. Callers
// adjust fields and pass the result to [Builder.WithConfig].
func DefaultConfig() Config {
	return Config{
		TOTP: TOTPConfig{
			Issuer:     "authguard",
			Period:     30,
			Digits:     6,
			Skew:       1,
			SecretSize: 32,
		},
		RecoveryCodes: RecoveryCodeConfig{
			Count:  8,
			Length: 10,
		},
		MFASession: MFASessionConfig{
			VerifiedTTL: 30 * time.Minute,
			CachePrefix: "mfav",
		},
		RateLimit: RateLimitConfig{
			Routes: []RouteQuota{
				{Prefix: "/auth", Points: 5, Window: time.Minute},
				{Prefix: "/mfa", Points: 5, Window: time.Minute},
				{Prefix: "/booking", Points: 20, Window: time.Minute},
				{Prefix: "/recovery:generate", Points: 3, Window: 24 * time.Hour},
				{Prefix: "/recovery:verify", Points: 5, Window: 15 * time.Minute},
			},
			Default:     RouteQuota{Points: 100, Window: time.Minute},
			CachePrefix: "rl",
		},
		WebAuthn: WebAuthnConfig{
			RPDisplayName: "authguard",
			ChallengeTTL:  5 * time.Minute,
			CachePrefix:   "wan",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.RateLimit.Routes = append([]RouteQuota(nil), cfg.RateLimit.Routes...)
	out.WebAuthn.RPOrigins = append([]string(nil), cfg.WebAuthn.RPOrigins...)
	return out
}

func (c Config) validate() error {
	if c.TOTP.Period == 0 || c.TOTP.Digits <= 0 {
		return errors.New("totp period and digits must be positive")
	}
	if c.TOTP.SecretSize < 20 {
		return errors.New("totp secret must carry at least 160 bits of entropy")
	}
	if c.RecoveryCodes.Count <= 0 || c.RecoveryCodes.Length < 8 {
		return errors.New("recovery code count and length out of range")
	}
	if c.MFASession.VerifiedTTL <= 0 {
		return errors.New("mfa verified ttl must be positive")
	}
	if c.RateLimit.Default.Points <= 0 || c.RateLimit.Default.Window <= 0 {
		return errors.New("default rate limit quota must be positive")
	}
	for _, q := range c.RateLimit.Routes {
		if q.Prefix == "" || q.Points <= 0 || q.Window <= 0 {
			return errors.New("route quota entries must have a prefix and positive budget")
		}
	}
	return nil
}
