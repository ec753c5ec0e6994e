package authguard

import (
	"errors"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/kestrelhq/authguard/cache"
	"github.com/kestrelhq/authguard/internal/rate"
	"github.com/kestrelhq/authguard/internal/stores"
)

// Builder assembles an [Engine]. Construction is allocation-only; no I/O
// happens until engine methods are called.
type Builder struct {
	config    Config
	store     Store
	kv        cache.Cache
	auditSink AuditSink

	built bool
}

// New returns a Builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the entire configuration tree.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore injects the credential store adapter. Required.
func (b *Builder) WithStore(store Store) *Builder {
	b.store = store
	return b
}

// WithCache injects the expiring cache adapter. Required.
func (b *Builder) WithCache(kv cache.Cache) *Builder {
	b.kv = kv
	return b
}

// WithAuditSink sets the destination for security audit events. Without
// one, events are dispatched to a no-op sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithVerifiedTTL overrides the MFA verified-session window.
func (b *Builder) WithVerifiedTTL(ttl time.Duration) *Builder {
	b.config.MFASession.VerifiedTTL = ttl
	return b
}

// Build validates the configuration and wires the engine. A Builder is
// single-use.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.store == nil {
		return nil, errors.New("credential store adapter is required")
	}
	if b.kv == nil {
		return nil, errors.New("expiring cache adapter is required")
	}
	if err := b.config.validate(); err != nil {
		return nil, err
	}

	engine := &Engine{
		config:  b.config,
		store:   b.store,
		kv:      b.kv,
		totp:    newTOTPManager(b.config.TOTP),
		metrics: newMetrics(),
		now:     time.Now,
	}

	engine.sessions = stores.NewMFASessionStore(
		b.kv,
		b.config.MFASession.CachePrefix,
		b.config.MFASession.VerifiedTTL,
	)
	engine.ceremonies = stores.NewCeremonyStore(
		b.kv,
		b.config.WebAuthn.CachePrefix,
		b.config.WebAuthn.ChallengeTTL,
	)
	engine.limiter = rate.New(b.kv, b.config.RateLimit.CachePrefix)

	// WebAuthn is optional: without a relying party ID the device
	// ceremony methods report ErrEngineNotReady, but record management
	// (list, rename, revoke) still works.
	if b.config.WebAuthn.RPID != "" {
		wa, err := webauthn.New(&webauthn.Config{
			RPID:          b.config.WebAuthn.RPID,
			RPDisplayName: b.config.WebAuthn.RPDisplayName,
			RPOrigins:     b.config.WebAuthn.RPOrigins,
		})
		if err != nil {
			return nil, err
		}
		engine.webauthn = wa
	}

	engine.audit = newAuditDispatcher(b.config.Audit, b.auditSink)

	b.built = true
	return engine, nil
}
