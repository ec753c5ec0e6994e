package authguard

import (
	"context"
	"testing"
	"time"
)

func TestQuotaForLongestPrefix(t *testing.T) {
	cfg := DefaultConfig().RateLimit

	cases := []struct {
		class  string
		points int
	}{
		{"/auth/login", 5},
		{"/mfa/verify", 5},
		{"/booking/slots", 20},
		{"/recovery:generate", 3},
		{"/recovery:verify", 5},
		{"/profile", 100},
	}
	for _, tc := range cases {
		if got := cfg.QuotaFor(tc.class).Points; got != tc.points {
			t.Errorf("QuotaFor(%q).Points = %d, want %d", tc.class, got, tc.points)
		}
	}
}

func TestQuotaForPrefersLongerMatch(t *testing.T) {
	cfg := RateLimitConfig{
		Routes: []RouteQuota{
			{Prefix: "/recovery", Points: 50, Window: time.Minute},
			{Prefix: "/recovery:generate", Points: 3, Window: 24 * time.Hour},
		},
		Default: RouteQuota{Points: 100, Window: time.Minute},
	}

	if got := cfg.QuotaFor("/recovery:generate").Points; got != 3 {
		t.Fatalf("points = %d, want the longer prefix to win", got)
	}
	if got := cfg.QuotaFor("/recovery:verify").Points; got != 50 {
		t.Fatalf("points = %d, want the shorter prefix", got)
	}
}

func TestConfigValidate(t *testing.T) {
	bad := DefaultConfig()
	bad.TOTP.SecretSize = 10
	if err := bad.validate(); err == nil {
		t.Error("undersized secret accepted")
	}

	bad = DefaultConfig()
	bad.RecoveryCodes.Length = 4
	if err := bad.validate(); err == nil {
		t.Error("short recovery codes accepted")
	}

	bad = DefaultConfig()
	bad.RateLimit.Routes = append(bad.RateLimit.Routes, RouteQuota{Prefix: "", Points: 1, Window: time.Minute})
	if err := bad.validate(); err == nil {
		t.Error("route quota without prefix accepted")
	}

	if err := DefaultConfig().validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestConsumeQuotaUsesRouteTable(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()

	// /auth allows 5 per window.
	for i := 0; i < 5; i++ {
		decision, err := te.engine.ConsumeQuota(ctx, "/auth/login", "ip:1.2.3.4")
		if err != nil || !decision.Allowed {
			t.Fatalf("request %d = (%+v, %v), want allowed", i+1, decision, err)
		}
	}
	decision, err := te.engine.ConsumeQuota(ctx, "/auth/login", "ip:1.2.3.4")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if decision.Allowed {
		t.Fatal("sixth request allowed")
	}
	if decision.RetryAfter <= 0 || decision.RetryAfter > time.Minute {
		t.Fatalf("retry after = %v, want within the window", decision.RetryAfter)
	}

	// Other identities are unaffected.
	if d, err := te.engine.ConsumeQuota(ctx, "/auth/login", "ip:5.6.7.8"); err != nil || !d.Allowed {
		t.Fatalf("other identity = (%+v, %v), want allowed", d, err)
	}

	if hits := te.engine.MetricsSnapshot().Counters[MetricRateLimitHit]; hits != 1 {
		t.Fatalf("rate limit hits = %d, want 1", hits)
	}
}

func TestConsumeQuotaDenialIsAudited(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if d, err := te.engine.ConsumeQuota(ctx, "/auth/login", "ip:1.2.3.4"); err != nil || !d.Allowed {
			t.Fatalf("request %d = (%+v, %v), want allowed", i+1, d, err)
		}
	}
	decision, err := te.engine.ConsumeQuota(ctx, "/auth/login", "ip:1.2.3.4")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if decision.Allowed {
		t.Fatal("sixth request allowed")
	}

	ev := te.waitAudit(t)
	if ev.Action != AuditActionRateLimit {
		t.Fatalf("action = %q, want %q", ev.Action, AuditActionRateLimit)
	}
	if ev.Success {
		t.Fatal("rate limit trip recorded as success")
	}
	if ev.UserID != "ip:1.2.3.4" {
		t.Fatalf("identity = %q, want ip:1.2.3.4", ev.UserID)
	}
	if ev.Route != "/auth/login" {
		t.Fatalf("route = %q, want /auth/login", ev.Route)
	}
	if ev.ID == "" {
		t.Fatal("event has no id")
	}
}
