package otp

import (
	"errors"
	"testing"

	"github.com/farmlink/market/internal/domain"
)

func TestGenerateCode_ShapeAndRandomness(t *testing.T) {
	seen := make(map[string]bool)

	for i := 0; i < 50; i++ {
		code, err := GenerateCode()
		if err != nil {
			t.Fatalf("GenerateCode failed: %v", err)
		}

		if len(code) != CodeLength {
			t.Fatalf("expected %d characters, got %q", CodeLength, code)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("expected only digits, got %q", code)
			}
		}

		seen[code] = true
	}

	// 50 draws from a million-value space should not collapse to one value
	if len(seen) < 2 {
		t.Fatal("generator returned the same code 50 times")
	}
}

func TestGenerateResetToken(t *testing.T) {
	a, err := GenerateResetToken()
	if err != nil {
		t.Fatalf("GenerateResetToken failed: %v", err)
	}
	b, err := GenerateResetToken()
	if err != nil {
		t.Fatalf("GenerateResetToken failed: %v", err)
	}

	if len(a) != 32 {
		t.Fatalf("expected 32 hex characters, got %d (%q)", len(a), a)
	}
	if a == b {
		t.Fatal("two generated tokens are identical")
	}
}

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"already canonical", "123456", "123456"},
		{"interspersed separators", " 12 34-56 ", "123456"},
		{"short code left-padded", "42", "000042"},
		{"leading zeros preserved", "000042", "000042"},
		{"punctuation stripped", "1.2.3.4.5.6", "123456"},
		{"single digit", "7", "000007"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeCode(tt.input)
			if err != nil {
				t.Fatalf("NormalizeCode(%q) failed: %v", tt.input, err)
			}
			if got != tt.want {
				t.Fatalf("NormalizeCode(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeCode_Idempotent(t *testing.T) {
	inputs := []string{"123456", " 12 34-56 ", "42", "000001"}

	for _, input := range inputs {
		once, err := NormalizeCode(input)
		if err != nil {
			t.Fatalf("NormalizeCode(%q) failed: %v", input, err)
		}
		twice, err := NormalizeCode(once)
		if err != nil {
			t.Fatalf("NormalizeCode(%q) failed on second pass: %v", once, err)
		}
		if once != twice {
			t.Fatalf("not idempotent: %q -> %q -> %q", input, once, twice)
		}
	}
}

func TestNormalizeCode_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"no digits", "abc-def"},
		{"too many digits", "1234567"},
		{"whitespace only", "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NormalizeCode(tt.input); !errors.Is(err, domain.ErrMalformedCode) {
				t.Fatalf("NormalizeCode(%q): expected ErrMalformedCode, got %v", tt.input, err)
			}
		})
	}
}
