package deviceflow

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

// deviceCodeBytes is the entropy of a device code. 32 bytes gives the
// 256-bit minimum required of the opaque device credential.
const deviceCodeBytes = 32

// generateDeviceCode produces a cryptographically secure, URL-safe device
// code. A failure of the random source is fatal: the error wraps
// ErrCryptoUnavailable and is never retried against a weaker source.
func generateDeviceCode() (string, error) {
	b := make([]byte, deviceCodeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCryptoUnavailable, err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// generateUserCode draws length independent symbols from alphabet using the
// secure random source. The result is the normalized (uppercase, unformatted)
// form; display formatting is applied separately.
func generateUserCode(alphabet string, length int) (string, error) {
	chars := []rune(alphabet)
	var builder strings.Builder
	builder.Grow(length)

	for i := 0; i < length; i++ {
		c, err := selectRandomRune(chars)
		if err != nil {
			return "", err
		}
		builder.WriteRune(c)
	}

	return builder.String(), nil
}

// selectRandomRune selects a random rune from available without modulo bias
func selectRandomRune(available []rune) (rune, error) {
	availLen := len(available)
	// Reject the tail of the byte range that would skew the distribution
	maxUsable := 256 - (256 % availLen)

	b := make([]byte, 1)
	for {
		if _, err := rand.Read(b); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrCryptoUnavailable, err)
		}
		if int(b[0]) >= maxUsable {
			continue
		}
		return available[int(b[0])%availLen], nil
	}
}
