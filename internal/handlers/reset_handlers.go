package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/farmlink/market/internal/domain"
)

// RequestCode handles password-recovery code requests. The response shape is
// identical whether or not the account exists.
func (h *Handlers) RequestCode(w http.ResponseWriter, r *http.Request) {
	var req domain.RequestCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
		return
	}

	resp, err := h.resetService.RequestCode(r.Context(), &req)
	if err != nil {
		writeResetError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":            "If this account exists, a recovery code has been sent to its email address.",
		"accepted":           resp.Accepted,
		"delivery_confirmed": resp.DeliveryConfirmed,
	})
}

// ResendCode invalidates and replaces any outstanding recovery code.
func (h *Handlers) ResendCode(w http.ResponseWriter, r *http.Request) {
	var req domain.RequestCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
		return
	}

	resp, err := h.resetService.ResendCode(r.Context(), &req)
	if err != nil {
		writeResetError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":            "If this account exists, a recovery code has been sent to its email address.",
		"accepted":           resp.Accepted,
		"delivery_confirmed": resp.DeliveryConfirmed,
	})
}

// VerifyCode checks a submitted recovery code and returns a reset token.
func (h *Handlers) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
		return
	}

	resp, err := h.resetService.VerifyCodeForAccount(r.Context(), &req)
	if err != nil {
		writeResetError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// RedeemToken consumes a reset token and commits the new password.
func (h *Handlers) RedeemToken(w http.ResponseWriter, r *http.Request) {
	var req domain.RedeemTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
		return
	}

	if err := h.resetService.RedeemToken(r.Context(), &req); err != nil {
		writeResetError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"message": "Password updated. You can now log in with your new password.",
	})
}
