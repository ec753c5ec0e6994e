package httpapi

import (
	"encoding/json"
	"net/http"
)

// ListDevices handles GET /devices.
func (h *Handler) ListDevices(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}

	devices, err := h.engine.ListDevices(r.Context(), userID)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

type renameRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RenameDevice handles PATCH /devices.
func (h *Handler) RenameDevice(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}

	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" || req.Name == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "id and name are required")
		return
	}

	if err := h.engine.RenameDevice(r.Context(), userID, req.ID, req.Name); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// RevokeDevice handles DELETE /devices?id=. Without an id it revokes
// every device the user owns.
func (h *Handler) RevokeDevice(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}

	deviceID := r.URL.Query().Get("id")
	if deviceID == "" {
		revoked, err := h.engine.RevokeAllDevices(r.Context(), userID, requestInfo(r))
		if err != nil {
			respondEngineError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"success": true, "revoked": revoked})
		return
	}

	if err := h.engine.RevokeDevice(r.Context(), userID, deviceID, requestInfo(r)); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// BeginRegistration handles POST /devices/register/begin.
func (h *Handler) BeginRegistration(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}

	options, err := h.engine.BeginDeviceRegistration(r.Context(), userID)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, options)
}

// FinishRegistration handles POST /devices/register/finish. The optional
// device name travels in the X-Device-Name header because the body is the
// attestation response consumed by the protocol library.
func (h *Handler) FinishRegistration(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}

	device, err := h.engine.FinishDeviceRegistration(r.Context(), userID, r.Header.Get("X-Device-Name"), r, requestInfo(r))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "device": device})
}

// BeginLogin handles POST /devices/login/begin.
func (h *Handler) BeginLogin(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}

	options, err := h.engine.BeginDeviceLogin(r.Context(), userID)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, options)
}

// FinishLogin handles POST /devices/login/finish.
func (h *Handler) FinishLogin(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}

	device, err := h.engine.FinishDeviceLogin(r.Context(), userID, r, requestInfo(r))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "device": device})
}
