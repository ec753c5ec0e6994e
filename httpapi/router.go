// Package httpapi exposes the security core over HTTP. Routing follows
// the chi idiom: one router, grouped middleware, thin handlers.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	authguard "github.com/kestrelhq/authguard"
	"github.com/kestrelhq/authguard/middleware"
)

// RouterConfig wires the HTTP surface.
type RouterConfig struct {
	Engine      *authguard.Engine
	TokenSecret []byte
	// SensitivePrefixes require a current MFA verification for
	// authenticated callers, on top of the rate limit.
	SensitivePrefixes []string
	AllowedOrigins    []string
	Logger            *zap.Logger
}

// NewRouter builds the full route tree: CORS, identity extraction, the
// security middleware, then the handlers.
func NewRouter(cfg RouterConfig) chi.Router {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	h := NewHandler(cfg.Engine, cfg.Logger)
	r := chi.NewRouter()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Device-Name"},
		MaxAge:         300,
	}))
	r.Use(middleware.Authenticate(middleware.NewTokenVerifier(cfg.TokenSecret)))
	r.Use(middleware.Secure(middleware.SecurityConfig{
		Engine:            cfg.Engine,
		SensitivePrefixes: cfg.SensitivePrefixes,
		Logger:            cfg.Logger,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/mfa", func(r chi.Router) {
		r.Post("/setup", h.SetupMFA)
		r.Post("/verify", h.VerifyMFA)
		r.Get("/status", h.MFAStatus)
		r.Delete("/", h.DisableMFA)
	})

	r.Post("/recovery", h.Recovery)

	r.Route("/devices", func(r chi.Router) {
		r.Get("/", h.ListDevices)
		r.Patch("/", h.RenameDevice)
		r.Delete("/", h.RevokeDevice)
		r.Post("/register/begin", h.BeginRegistration)
		r.Post("/register/finish", h.FinishRegistration)
		r.Post("/login/begin", h.BeginLogin)
		r.Post("/login/finish", h.FinishLogin)
	})

	return r
}
