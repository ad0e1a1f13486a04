package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/farmlink/market/internal/domain"
	"github.com/farmlink/market/pkg/logger"
)

// Register handles account registration
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
		return
	}

	user, err := h.accountService.Register(r.Context(), &req)
	if err != nil {
		if errors.Is(err, domain.ErrStoreUnavailable) {
			writeError(w, http.StatusInternalServerError, "Service temporarily unavailable", "STORE_UNAVAILABLE")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error(), "REGISTRATION_FAILED")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Registration successful. Please check your email to verify your account.",
		"user":    user.ToUserInfo(),
	})
}

// Login handles account authentication
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
		return
	}

	response, err := h.accountService.Login(r.Context(), &req)
	if err != nil {
		if errors.Is(err, domain.ErrStoreUnavailable) {
			writeError(w, http.StatusInternalServerError, "Service temporarily unavailable", "STORE_UNAVAILABLE")
			return
		}
		writeError(w, http.StatusUnauthorized, err.Error(), "LOGIN_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// VerifyEmail handles email verification
func (h *Handlers) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "Missing verification token", "INVALID_INPUT")
		return
	}

	user, err := h.accountService.VerifyEmail(r.Context(), token)
	if err != nil {
		if errors.Is(err, domain.ErrStoreUnavailable) {
			writeError(w, http.StatusInternalServerError, "Service temporarily unavailable", "STORE_UNAVAILABLE")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error(), "VERIFICATION_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Email verified successfully",
		"user":    user.ToUserInfo(),
	})
}

// Me returns the authenticated account. RequireJWT puts the subject ID on
// the request context.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(logger.UserIDKey).(int64)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing or invalid authorization header", "UNAUTHORIZED")
		return
	}

	user, err := h.accountService.Me(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrStoreUnavailable) {
			writeError(w, http.StatusInternalServerError, "Service temporarily unavailable", "STORE_UNAVAILABLE")
			return
		}
		writeError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
		return
	}

	writeJSON(w, http.StatusOK, user.ToUserInfo())
}

// ResendVerification handles resending verification emails
func (h *Handlers) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "Email is required", "INVALID_INPUT")
		return
	}

	if err := h.accountService.ResendVerification(r.Context(), req.Email); err != nil {
		if errors.Is(err, domain.ErrStoreUnavailable) {
			writeError(w, http.StatusInternalServerError, "Service temporarily unavailable", "STORE_UNAVAILABLE")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error(), "RESEND_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Verification email sent",
	})
}
