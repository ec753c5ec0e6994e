// Package middleware provides the HTTP entry point of the security core:
// bearer-token identity extraction, the always-on rate limit check, and
// the MFA gate for sensitive routes. The middleware performs no business
// logic and holds no state beyond what it reads from the engine.
package middleware
