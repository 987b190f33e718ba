// Package csrf provides CSRF protection for the verification web handlers
package csrf

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidToken indicates a missing or invalid CSRF token
	ErrInvalidToken = errors.New("invalid csrf token")
)

// Store provides token storage operations
type Store interface {
	// SaveToken stores a CSRF token with expiry
	SaveToken(ctx context.Context, token string, expiresIn time.Duration) error

	// ConsumeToken checks a token exists and removes it so it cannot be replayed
	ConsumeToken(ctx context.Context, token string) error

	// CheckHealth verifies the store is operational
	CheckHealth(ctx context.Context) error
}

// Manager handles CSRF token generation and validation
type Manager struct {
	store     Store
	secret    []byte
	expiresIn time.Duration
}

// NewManager creates a new CSRF token manager
func NewManager(store Store, secret []byte, expiresIn time.Duration) *Manager {
	return &Manager{
		store:     store,
		secret:    secret,
		expiresIn: expiresIn,
	}
}

// GenerateToken creates and stores a new CSRF token
func (m *Manager) GenerateToken(ctx context.Context) (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}

	token := base64.URLEncoding.EncodeToString(tokenBytes)

	h := hmac.New(sha256.New, m.secret)
	h.Write([]byte(token))
	sig := h.Sum(nil)

	fullToken := fmt.Sprintf("%s.%s",
		token,
		base64.URLEncoding.EncodeToString(sig),
	)

	if err := m.store.SaveToken(ctx, fullToken, m.expiresIn); err != nil {
		return "", fmt.Errorf("saving token: %w", err)
	}

	return fullToken, nil
}

// ValidateToken checks the signature and store presence of a token, consuming
// it so a replayed form submission fails.
func (m *Manager) ValidateToken(ctx context.Context, token string) error {
	if token == "" {
		return ErrInvalidToken
	}

	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return ErrInvalidToken
	}

	h := hmac.New(sha256.New, m.secret)
	h.Write([]byte(parts[0]))
	expectedSig := h.Sum(nil)

	actualSig, err := base64.URLEncoding.DecodeString(parts[1])
	if err != nil {
		return ErrInvalidToken
	}
	if !hmac.Equal(expectedSig, actualSig) {
		return ErrInvalidToken
	}

	if err := m.store.ConsumeToken(ctx, token); err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return ErrInvalidToken
		}
		return fmt.Errorf("consuming token: %w", err)
	}

	return nil
}

// CheckHealth verifies the backing store is operational
func (m *Manager) CheckHealth(ctx context.Context) error {
	return m.store.CheckHealth(ctx)
}
