package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	authguard "github.com/kestrelhq/authguard"
	"github.com/kestrelhq/authguard/middleware"
)

// Handler serves the account security HTTP surface. It adapts requests
// onto engine operations and owns nothing else.
type Handler struct {
	engine *authguard.Engine
	logger *zap.Logger
}

func NewHandler(engine *authguard.Engine, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{engine: engine, logger: logger}
}

func requestInfo(r *http.Request) authguard.RequestInfo {
	return authguard.RequestInfo{
		IP:        middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}

// callerID enforces authentication on protected handlers.
func (h *Handler) callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return "", false
	}
	return userID, true
}

type tokenRequest struct {
	Token string `json:"token"`
}

// SetupMFA handles POST /mfa/setup.
func (h *Handler) SetupMFA(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}

	setup, err := h.engine.SetupTOTP(r.Context(), userID, requestInfo(r))
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"secret":          setup.Secret,
		"qrCode":          setup.ProvisioningURI,
		"provisioningUri": setup.ProvisioningURI,
	})
}

// VerifyMFA handles POST /mfa/verify.
func (h *Handler) VerifyMFA(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "token is required")
		return
	}

	verified, err := h.engine.VerifyMFA(r.Context(), userID, req.Token, requestInfo(r))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	if !verified {
		respondError(w, http.StatusUnauthorized, "MFA_VERIFICATION_FAILED", "invalid token")
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// DisableMFA handles DELETE /mfa.
func (h *Handler) DisableMFA(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "token is required")
		return
	}

	if err := h.engine.DisableTOTP(r.Context(), userID, req.Token, requestInfo(r)); err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// MFAStatus handles GET /mfa/status.
func (h *Handler) MFAStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}

	enabled, err := h.engine.IsMFAEnabled(r.Context(), userID)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	verified, err := h.engine.VerifyMFA(r.Context(), userID, "", authguard.RequestInfo{})
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{
		"enabled":  enabled,
		"verified": verified,
	})
}
