package domain

import "errors"

// Password-recovery failure taxonomy. Every value except ErrStoreUnavailable
// is an expected, user-correctable state.
var (
	ErrMalformedCode    = errors.New("code must be 6 digits")
	ErrNoCodeIssued     = errors.New("no recovery code has been issued for this account")
	ErrCodeMismatch     = errors.New("incorrect recovery code")
	ErrAlreadyUsed      = errors.New("this recovery code has already been used")
	ErrExpired          = errors.New("this recovery code has expired")
	ErrInvalidToken     = errors.New("invalid reset token")
	ErrTokenAlreadyUsed = errors.New("this reset token has already been used")
	ErrTokenExpired     = errors.New("this reset token has expired")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrEmailDelivery    = errors.New("email delivery failed")
)
