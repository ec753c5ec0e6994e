package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	authguard "github.com/kestrelhq/authguard"
)

// errorBody is the stable wire shape for every failure response. No stack
// traces or internal identifiers ever reach the caller.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorBody{Error: code, Message: message})
}

// respondEngineError maps engine sentinels onto the error taxonomy.
func respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authguard.ErrValidation):
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "malformed or missing input")
	case errors.Is(err, authguard.ErrUnauthorized):
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
	case errors.Is(err, authguard.ErrMFAVerificationFailed):
		respondError(w, http.StatusUnauthorized, "MFA_VERIFICATION_FAILED", "invalid token or code")
	case errors.Is(err, authguard.ErrMFARequired):
		respondError(w, http.StatusForbidden, "MFA_REQUIRED", "multi-factor verification required")
	case errors.Is(err, authguard.ErrNotFound), errors.Is(err, authguard.ErrUserNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
	case errors.Is(err, authguard.ErrMFANotConfigured):
		respondError(w, http.StatusNotFound, "MFA_NOT_CONFIGURED", "multi-factor authentication is not set up")
	case errors.Is(err, authguard.ErrRateLimited):
		respondError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
	case errors.Is(err, authguard.ErrCeremonyFailed):
		respondError(w, http.StatusBadRequest, "CEREMONY_FAILED", "credential ceremony could not be completed")
	default:
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
}
