// Package validation provides user code validation utilities for the device
// authorization grant.
package validation

import (
	"fmt"
	"strings"
)

// Validation settings
const (
	MinLength     = 6  // Minimum normalized length
	MaxLength     = 12 // Maximum normalized length
	DefaultLength = 8  // Default normalized length
)

// Alphabet contains the allowed characters for user codes. Visually ambiguous
// characters (0/O, 1/I/L) and vowels are excluded per RFC 8628 section 6.1.
const Alphabet = "BCDFGHJKLMNPQRSTVWXZ"

// ValidationError represents a user code validation error
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid user code: %s", e.Message)
}

// ValidateUserCode checks that a user-entered code is well formed before any
// store lookup is attempted. The code is normalized first, so separators,
// spacing and case entered by the user are all accepted.
func ValidateUserCode(code string) error {
	normalized := NormalizeCode(code)

	if len(normalized) < MinLength || len(normalized) > MaxLength {
		return &ValidationError{
			Message: fmt.Sprintf("length must be between %d and %d characters", MinLength, MaxLength),
		}
	}

	for _, c := range normalized {
		if !strings.ContainsRune(Alphabet, c) {
			return &ValidationError{
				Message: fmt.Sprintf("code may only contain the characters %s", Alphabet),
			}
		}
	}

	return nil
}

// NormalizeCode converts a user code to canonical format: uppercase with the
// display separator and surrounding whitespace removed. Codes are stored and
// compared in this form.
func NormalizeCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return strings.ReplaceAll(code, "-", "")
}

// FormatCode converts a normalized code to display format by inserting a
// separator at the midpoint (e.g. XXXXXXXX -> XXXX-XXXX). It is a pure
// transform; the stored code is never reformatted.
func FormatCode(code string) string {
	if len(code) < MinLength {
		return code
	}
	mid := len(code) / 2
	return code[:mid] + "-" + code[mid:]
}
