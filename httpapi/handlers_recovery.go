package httpapi

import (
	"encoding/json"
	"net/http"
)

type recoveryRequest struct {
	Code string `json:"code"`
}

// Recovery handles POST /recovery?action=generate|verify|count. The
// action-specific quotas (generation 3/24h, verification 5/15min) are
// enforced upstream by the security middleware through the route class.
func (h *Handler) Recovery(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}

	switch r.URL.Query().Get("action") {
	case "generate":
		codes, err := h.engine.GenerateRecoveryCodes(r.Context(), userID, requestInfo(r))
		if err != nil {
			respondEngineError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"codes": codes})

	case "verify":
		var req recoveryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "code is required")
			return
		}
		ok, err := h.engine.VerifyRecoveryCode(r.Context(), userID, req.Code, requestInfo(r))
		if err != nil {
			respondEngineError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]bool{"success": ok})

	case "count":
		count, err := h.engine.RemainingRecoveryCodes(r.Context(), userID)
		if err != nil {
			respondEngineError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]int{"count": count})

	default:
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "unknown action")
	}
}
