package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/farmlink/market/internal/domain"
	"github.com/farmlink/market/internal/repository"
	"github.com/farmlink/market/internal/service"
	"github.com/farmlink/market/pkg/auth"
	"github.com/farmlink/market/pkg/config"
	"github.com/farmlink/market/pkg/logger"
)

type Handlers struct {
	accountService service.AccountService
	resetService   service.PasswordResetService
	rateLimitRepo  repository.RateLimitRepository
	config         *config.Config
}

func New(
	accountService service.AccountService,
	resetService service.PasswordResetService,
	rateLimitRepo repository.RateLimitRepository,
	config *config.Config,
) *Handlers {
	return &Handlers{
		accountService: accountService,
		resetService:   resetService,
		rateLimitRepo:  rateLimitRepo,
		config:         config,
	}
}

// Middleware for JWT authentication
func (h *Handlers) RequireJWT(requiredRole string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "Missing or invalid authorization header", "UNAUTHORIZED")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			claims, err := auth.Parse(token, h.config.Auth.JWTSecret)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid token", "INVALID_TOKEN")
				return
			}

			if requiredRole != "" && claims.Role != requiredRole {
				writeError(w, http.StatusForbidden, "Insufficient permissions", "FORBIDDEN")
				return
			}

			ctx := context.WithValue(r.Context(), logger.UserIDKey, claims.Sub)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RecoveryRateLimit throttles code-request endpoints per client IP.
func (h *Handlers) RecoveryRateLimit() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "recovery:" + getClientIP(r)

			allowed, err := h.rateLimitRepo.CheckRateLimit(r.Context(), key, 5, time.Minute)
			if err != nil {
				// Fail open
				logger.ErrorContext(r.Context(), "Rate limit check failed", "error", err)
			} else if !allowed {
				writeError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.", "RATE_LIMIT_EXCEEDED")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Helper functions

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, message, code string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
		"code":  code,
	})
}

// writeResetError maps the recovery taxonomy onto HTTP responses. Only
// StoreUnavailable becomes a 5xx, and its message stays generic.
func writeResetError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrStoreUnavailable):
		writeError(w, http.StatusInternalServerError, "Service temporarily unavailable", "STORE_UNAVAILABLE")
	case errors.Is(err, domain.ErrMalformedCode):
		writeError(w, http.StatusBadRequest, err.Error(), "MALFORMED_CODE")
	case errors.Is(err, domain.ErrNoCodeIssued):
		writeError(w, http.StatusBadRequest, err.Error(), "NO_CODE_ISSUED")
	case errors.Is(err, domain.ErrCodeMismatch):
		writeError(w, http.StatusBadRequest, err.Error(), "CODE_MISMATCH")
	case errors.Is(err, domain.ErrAlreadyUsed):
		writeError(w, http.StatusBadRequest, err.Error(), "CODE_ALREADY_USED")
	case errors.Is(err, domain.ErrExpired):
		writeError(w, http.StatusBadRequest, err.Error(), "CODE_EXPIRED")
	case errors.Is(err, domain.ErrInvalidToken):
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_TOKEN")
	case errors.Is(err, domain.ErrTokenAlreadyUsed):
		writeError(w, http.StatusBadRequest, err.Error(), "TOKEN_ALREADY_USED")
	case errors.Is(err, domain.ErrTokenExpired):
		writeError(w, http.StatusBadRequest, err.Error(), "TOKEN_EXPIRED")
	default:
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_INPUT")
	}
}
