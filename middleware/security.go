package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	authguard "github.com/kestrelhq/authguard"
)

// SecurityConfig wires the security middleware. Engine is required; the
// resolvers default to the behavior described on their fields.
type SecurityConfig struct {
	Engine *authguard.Engine

	// SensitivePrefixes is the static allow-list of route prefixes that
	// require a current MFA verification for authenticated callers.
	SensitivePrefixes []string

	// IdentityResolver derives the rate-limit identity for a request.
	// The default prefers the authenticated user ID, falls back to the
	// client IP, and finally to the constant "anonymous". The IP key is
	// weak (shared NATs, spoofable forwarded headers); swapping in a
	// stronger resolver does not touch the limiter algorithm.
	IdentityResolver func(*http.Request) string

	// ClassResolver maps a request to its route class. The default is
	// the URL path, with ":<action>" appended when an action query
	// parameter is present, so /recovery?action=generate and
	// /recovery?action=verify carry separate quotas.
	ClassResolver func(*http.Request) string

	Logger *zap.Logger
}

// Secure returns the single entry-point middleware: every request
// consumes a rate-limit point, and sensitive routes additionally require
// a current MFA verification. Limiter or MFA backend failures deny the
// request; the abuse-control layer never fails open.
func Secure(cfg SecurityConfig) func(http.Handler) http.Handler {
	if cfg.IdentityResolver == nil {
		cfg.IdentityResolver = DefaultIdentity
	}
	if cfg.ClassResolver == nil {
		cfg.ClassResolver = DefaultRouteClass
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Engine == nil {
				writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "security layer not ready")
				return
			}

			routeClass := cfg.ClassResolver(r)
			identity := cfg.IdentityResolver(r)

			decision, err := cfg.Engine.ConsumeQuota(r.Context(), routeClass, identity)
			if err != nil {
				cfg.Logger.Warn("rate limiter unavailable, denying",
					zap.String("route_class", routeClass),
					zap.Error(err),
				)
				writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "request could not be admitted")
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

			if !decision.Allowed {
				seconds := int(decision.RetryAfter.Seconds())
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				writeJSON(w, http.StatusTooManyRequests, map[string]string{
					"error":      "RATE_LIMITED",
					"message":    "too many requests",
					"retryAfter": strconv.Itoa(seconds) + " seconds",
				})
				return
			}

			if isSensitive(cfg.SensitivePrefixes, r.URL.Path) {
				userID := UserIDFromContext(r.Context())
				if userID != "" {
					verified, err := cfg.Engine.VerifyMFA(r.Context(), userID, "", authguard.RequestInfo{})
					if err != nil || !verified {
						writeError(w, http.StatusForbidden, "MFA_REQUIRED", "multi-factor verification required")
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// DefaultIdentity is the default rate-limit identity resolver.
func DefaultIdentity(r *http.Request) string {
	if userID := UserIDFromContext(r.Context()); userID != "" {
		return "uid:" + userID
	}
	if ip := ClientIP(r); ip != "" {
		return "ip:" + ip
	}
	return "anonymous"
}

// DefaultRouteClass is the default route class resolver.
func DefaultRouteClass(r *http.Request) string {
	class := r.URL.Path
	if action := r.URL.Query().Get("action"); action != "" {
		class += ":" + action
	}
	return class
}

// ClientIP extracts the caller address, preferring the first
// X-Forwarded-For hop.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return host
}

func isSensitive(prefixes []string, path string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
