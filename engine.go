package authguard

import (
	"context"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"github.com/kestrelhq/authguard/cache"
	"github.com/kestrelhq/authguard/internal/rate"
	"github.com/kestrelhq/authguard/internal/stores"
)

// Engine is the account security core. All methods are safe for
// concurrent use after [Builder.Build]. The engine holds no mutable state
// of its own; everything ephemeral lives in the cache adapter and
// everything durable in the store adapter.
type Engine struct {
	config     Config
	store      Store
	kv         cache.Cache
	totp       *totpManager
	sessions   *stores.MFASessionStore
	ceremonies *stores.CeremonyStore
	limiter    *rate.Limiter
	webauthn   *webauthn.WebAuthn
	audit      *auditDispatcher
	metrics    *Metrics

	// now is swapped in tests to pin TOTP time steps.
	now func() time.Time
}

// Close drains the audit dispatcher. Call once on shutdown.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// dispatch buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

// RateDecision is the public mirror of a limiter decision.
type RateDecision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// ConsumeQuota consumes one rate-limit point for (routeClass, identity)
// against the configured quota table. A non-nil error means the limiter
// backend failed; callers guarding protected routes must deny in that
// case.
func (e *Engine) ConsumeQuota(ctx context.Context, routeClass, identity string) (RateDecision, error) {
	if e == nil || e.limiter == nil {
		return RateDecision{}, ErrEngineNotReady
	}

	quota := e.config.RateLimit.QuotaFor(routeClass)
	decision, err := e.limiter.Allow(ctx, routeClass, identity, rate.Quota{
		Points: quota.Points,
		Window: quota.Window,
	})
	if err != nil {
		return RateDecision{}, err
	}

	if !decision.Allowed {
		e.metricInc(MetricRateLimitHit)
		if e.audit != nil {
			e.audit.Emit(ctx, AuditEvent{
				ID:        uuid.NewString(),
				Timestamp: e.now(),
				UserID:    identity,
				Action:    AuditActionRateLimit,
				Route:     routeClass,
				Success:   false,
			})
		}
	}
	return RateDecision{
		Allowed:    decision.Allowed,
		Limit:      decision.Limit,
		Remaining:  decision.Remaining,
		RetryAfter: decision.RetryAfter,
	}, nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) emitAudit(ctx context.Context, action string, success bool, userID, deviceID string, req RequestInfo, cause error) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		ID:        uuid.NewString(),
		Timestamp: e.now(),
		UserID:    userID,
		Action:    action,
		DeviceID:  deviceID,
		Success:   success,
		IP:        req.IP,
		UserAgent: req.UserAgent,
	}
	if cause != nil {
		event.Error = cause.Error()
	}

	e.audit.Emit(ctx, event)
}
