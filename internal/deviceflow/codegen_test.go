package deviceflow

import (
	"strings"
	"testing"

	"github.com/wrale/oauth2-device-authz/internal/validation"
)

func TestGenerateDeviceCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := generateDeviceCode()
		if err != nil {
			t.Fatalf("generateDeviceCode() error = %v", err)
		}

		// 32 bytes in unpadded base64url is 43 characters
		if len(code) != 43 {
			t.Errorf("code length = %d, want 43", len(code))
		}
		if strings.ContainsAny(code, "+/=") {
			t.Errorf("code %q contains non-URL-safe characters", code)
		}
		if seen[code] {
			t.Fatalf("duplicate device code %q", code)
		}
		seen[code] = true
	}
}

func TestGenerateUserCode(t *testing.T) {
	for i := 0; i < 100; i++ {
		code, err := generateUserCode(validation.Alphabet, validation.DefaultLength)
		if err != nil {
			t.Fatalf("generateUserCode() error = %v", err)
		}
		if len(code) != validation.DefaultLength {
			t.Errorf("code length = %d, want %d", len(code), validation.DefaultLength)
		}
		for _, c := range code {
			if !strings.ContainsRune(validation.Alphabet, c) {
				t.Errorf("code %q contains %q outside the alphabet", code, c)
			}
		}
		// Ambiguous characters must never appear
		if strings.ContainsAny(code, "01OIL") {
			t.Errorf("code %q contains ambiguous characters", code)
		}
	}
}

func TestGenerateUserCodeCustomAlphabet(t *testing.T) {
	code, err := generateUserCode("AB", 16)
	if err != nil {
		t.Fatalf("generateUserCode() error = %v", err)
	}
	if len(code) != 16 {
		t.Errorf("code length = %d, want 16", len(code))
	}
	for _, c := range code {
		if c != 'A' && c != 'B' {
			t.Errorf("code %q contains %q outside alphabet AB", code, c)
		}
	}
}

func TestSelectRandomRuneCoversAlphabet(t *testing.T) {
	chars := []rune(validation.Alphabet)
	counts := make(map[rune]int)
	for i := 0; i < 2000; i++ {
		c, err := selectRandomRune(chars)
		if err != nil {
			t.Fatalf("selectRandomRune() error = %v", err)
		}
		counts[c]++
	}

	// With 2000 draws over 20 symbols every symbol should appear
	for _, c := range chars {
		if counts[c] == 0 {
			t.Errorf("symbol %q never drawn", c)
		}
	}
}
