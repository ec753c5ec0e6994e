// Package stores holds cache-backed ephemeral state used by the engine:
// the MFA verified-session markers and the in-flight WebAuthn ceremony
// sessions. Durable state lives behind the credential store adapter, not
// here.
package stores
