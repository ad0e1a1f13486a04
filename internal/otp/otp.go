// Package otp generates and canonicalizes password-recovery credentials.
package otp

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/farmlink/market/internal/domain"
)

// CodeLength is the fixed length of a recovery code.
const CodeLength = 6

var codeSpace = big.NewInt(1_000_000)

// GenerateCode returns a crypto-random code of exactly 6 ASCII digits,
// left-padded with zeros. The code guards password reset, so a
// general-purpose PRNG is not acceptable here.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("failed to generate recovery code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// GenerateResetToken returns a 32-character hex token (128 bits of entropy).
func GenerateResetToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate reset token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// NormalizeCode canonicalizes a user-entered code: every non-digit character
// is stripped (whitespace, dashes, copy-paste artifacts), then the result is
// left-padded with '0' to 6 characters. The same function runs on freshly
// generated codes before storage, so stored and submitted codes compare as
// exact strings and leading zeros survive.
//
// Inputs with no digits at all, or with more than 6 digits, fail with
// ErrMalformedCode.
func NormalizeCode(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	digits := b.String()
	if len(digits) == 0 || len(digits) > CodeLength {
		return "", domain.ErrMalformedCode
	}

	return strings.Repeat("0", CodeLength-len(digits)) + digits, nil
}
