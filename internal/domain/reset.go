package domain

import (
	"strings"
	"time"
)

// OTPCredential is one issued password-recovery code. At most one usable
// credential exists per user: issuing a new code deletes all prior rows.
type OTPCredential struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Code      string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	Consumed  bool      `json:"consumed"`
	CreatedAt time.Time `json:"created_at"`
}

func (c *OTPCredential) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}

// ResetToken proves a completed code verification and is redeemable once
// to set a new password.
type ResetToken struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	Used      bool      `json:"used"`
	CreatedAt time.Time `json:"created_at"`
}

func (t *ResetToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

type RequestCodeRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
}

type RequestCodeResponse struct {
	Accepted          bool `json:"accepted"`
	DeliveryConfirmed bool `json:"delivery_confirmed"`
}

type VerifyCodeRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Code     string `json:"code"`
}

type VerifyCodeResponse struct {
	ResetToken string `json:"reset_token"`
	ExpiresIn  int64  `json:"expires_in"`
}

type RedeemTokenRequest struct {
	Token           string `json:"token"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (r *RequestCodeRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Username = strings.TrimSpace(r.Username)
}

func (r *VerifyCodeRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Username = strings.TrimSpace(r.Username)
}
