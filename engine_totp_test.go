package authguard

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSetupTOTPReplacesPreviousSecret(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	te.store.addUser("u1", "u1@example.com")

	first, err := te.engine.SetupTOTP(ctx, "u1", RequestInfo{})
	if err != nil {
		t.Fatalf("first setup: %v", err)
	}
	second, err := te.engine.SetupTOTP(ctx, "u1", RequestInfo{})
	if err != nil {
		t.Fatalf("second setup: %v", err)
	}
	if first.Secret == second.Secret {
		t.Fatal("setup did not rotate the secret")
	}

	now := time.Now()
	oldCode, err := te.engine.totp.Code(first.Secret, now)
	if err != nil {
		t.Fatalf("compute code: %v", err)
	}
	if ok, _ := te.engine.VerifyMFA(ctx, "u1", oldCode, RequestInfo{}); ok {
		t.Fatal("code for replaced secret accepted")
	}

	newCode, err := te.engine.totp.Code(second.Secret, now)
	if err != nil {
		t.Fatalf("compute code: %v", err)
	}
	if ok, err := te.engine.VerifyMFA(ctx, "u1", newCode, RequestInfo{}); err != nil || !ok {
		t.Fatalf("VerifyMFA = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestSetupTOTPUnknownUser(t *testing.T) {
	te := newTestEngine(t, nil)

	_, err := te.engine.SetupTOTP(context.Background(), "ghost", RequestInfo{})
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestDisableTOTP(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	te.store.addUser("u1", "")

	setup, err := te.engine.SetupTOTP(ctx, "u1", RequestInfo{})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	code, err := te.engine.totp.Code(setup.Secret, time.Now())
	if err != nil {
		t.Fatalf("compute code: %v", err)
	}
	if ok, err := te.engine.VerifyMFA(ctx, "u1", code, RequestInfo{}); err != nil || !ok {
		t.Fatalf("VerifyMFA = (%v, %v), want (true, nil)", ok, err)
	}

	code, err = te.engine.totp.Code(setup.Secret, time.Now())
	if err != nil {
		t.Fatalf("compute code: %v", err)
	}
	if err := te.engine.DisableTOTP(ctx, "u1", code, RequestInfo{}); err != nil {
		t.Fatalf("disable: %v", err)
	}

	if enabled, _ := te.engine.IsMFAEnabled(ctx, "u1"); enabled {
		t.Fatal("MFA flag still set after disable")
	}
	if _, err := te.store.GetTOTPSecret(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("secret err = %v, want ErrNotFound", err)
	}
	// Disable also drops the verified marker.
	if ok, _ := te.engine.VerifyMFA(ctx, "u1", "", RequestInfo{}); ok {
		t.Fatal("verified marker survived disable")
	}
}

func TestDisableTOTPWrongToken(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	te.store.addUser("u1", "")

	setup, err := te.engine.SetupTOTP(ctx, "u1", RequestInfo{})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	code, err := te.engine.totp.Code(setup.Secret, time.Now())
	if err != nil {
		t.Fatalf("compute code: %v", err)
	}

	if err := te.engine.DisableTOTP(ctx, "u1", wrongCode(code), RequestInfo{}); !errors.Is(err, ErrMFAVerificationFailed) {
		t.Fatalf("err = %v, want ErrMFAVerificationFailed", err)
	}
	// Secret survives a failed disable attempt.
	if _, err := te.store.GetTOTPSecret(ctx, "u1"); err != nil {
		t.Fatalf("secret gone after failed disable: %v", err)
	}
}

func TestDisableTOTPNotConfigured(t *testing.T) {
	te := newTestEngine(t, nil)
	te.store.addUser("u1", "")

	err := te.engine.DisableTOTP(context.Background(), "u1", "123456", RequestInfo{})
	if !errors.Is(err, ErrMFANotConfigured) {
		t.Fatalf("err = %v, want ErrMFANotConfigured", err)
	}
}

func TestTOTPVerifyMetricSeparateFromDeviceLogin(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	te.store.addUser("u1", "")

	setup, err := te.engine.SetupTOTP(ctx, "u1", RequestInfo{})
	if err != nil {
		t.Fatalf("setup totp: %v", err)
	}
	code, err := te.engine.totp.Code(setup.Secret, time.Now())
	if err != nil {
		t.Fatalf("compute code: %v", err)
	}
	if ok, err := te.engine.VerifyMFA(ctx, "u1", code, RequestInfo{}); err != nil || !ok {
		t.Fatalf("VerifyMFA = (%v, %v), want (true, nil)", ok, err)
	}

	snap := te.engine.MetricsSnapshot().Counters
	if snap[MetricTOTPVerifySuccess] != 1 {
		t.Fatalf("totp successes = %d, want 1", snap[MetricTOTPVerifySuccess])
	}
	if snap[MetricDeviceLoginSuccess] != 0 {
		t.Fatalf("device login successes = %d, want 0", snap[MetricDeviceLoginSuccess])
	}
}
