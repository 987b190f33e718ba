// Package ticket provides HMAC-signed, time-limited tickets for the
// verification flow. A ticket binds a user code to a stage of the flow (the
// login redirect, then the consent submit with the authenticated subject)
// without any server-side session state, so any instance can complete a flow
// another instance started.
package ticket

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidTicket indicates a malformed or tampered ticket
	ErrInvalidTicket = errors.New("invalid ticket")

	// ErrTicketExpired indicates the ticket's validity window has passed
	ErrTicketExpired = errors.New("ticket expired")
)

// Claims is what a ticket attests to
type Claims struct {
	// UserCode is the normalized user code the flow concerns
	UserCode string `json:"user_code"`

	// Subject is the authenticated principal. Empty on login-redirect
	// tickets; required before an approval is accepted.
	Subject string `json:"sub,omitempty"`
}

type payload struct {
	Claims
	ExpiresAt int64 `json:"exp"`
}

// Manager issues and verifies tickets
type Manager struct {
	secret   []byte
	lifetime time.Duration

	now func() time.Time
}

// NewManager creates a ticket manager. lifetime bounds how long a user can
// sit on the login or consent page before starting over.
func NewManager(secret []byte, lifetime time.Duration) *Manager {
	return &Manager{
		secret:   secret,
		lifetime: lifetime,
		now:      time.Now,
	}
}

// Issue creates a signed ticket for the given claims
func (m *Manager) Issue(claims Claims) (string, error) {
	data, err := json.Marshal(payload{
		Claims:    claims,
		ExpiresAt: m.now().Add(m.lifetime).Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("marshaling ticket: %w", err)
	}

	body := base64.RawURLEncoding.EncodeToString(data)
	return body + "." + m.sign(body), nil
}

// Verify checks a ticket's signature and validity window and returns its claims
func (m *Manager) Verify(ticket string) (Claims, error) {
	parts := strings.SplitN(ticket, ".", 2)
	if len(parts) != 2 {
		return Claims{}, ErrInvalidTicket
	}

	if !hmac.Equal([]byte(m.sign(parts[0])), []byte(parts[1])) {
		return Claims{}, ErrInvalidTicket
	}

	data, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return Claims{}, ErrInvalidTicket
	}

	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Claims{}, ErrInvalidTicket
	}
	if p.UserCode == "" {
		return Claims{}, ErrInvalidTicket
	}
	if m.now().Unix() >= p.ExpiresAt {
		return Claims{}, ErrTicketExpired
	}

	return p.Claims, nil
}

func (m *Manager) sign(body string) string {
	h := hmac.New(sha256.New, m.secret)
	h.Write([]byte(body))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
