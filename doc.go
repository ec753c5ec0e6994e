// Package authguard provides the account security and abuse-control core
// for user-facing services: TOTP-based multi-factor authentication,
// WebAuthn device credential lifecycle, one-time recovery codes, and a
// route-aware Redis-backed rate limiter.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authguard is the public surface. It exposes [Engine], [Builder],
// [Config], the [Store] contract, audit sinks, and value types
// (DeviceInfo, TOTPSetup, AuditEvent, etc.). The expiring key-value
// contract lives in the cache subpackage; rate limiting and session
// markers are coordinated under internal/ and never exported.
//
// All shared mutable state (rate-limit counters, verified-session markers,
// recovery-code consumption) lives behind the cache and [Store] adapters,
// never in process memory, so horizontal scale-out is safe by
// construction provided those adapters are themselves consistent.
//
// # Failure policy
//
// Security decisions fail closed: if the cache backing the rate limiter or
// the MFA session store is unreachable, requests on protected routes are
// denied and sessions are treated as unverified. Availability of the
// abuse-control layer is never allowed to silently disable protection.
package authguard
