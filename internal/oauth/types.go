// Package oauth defines the external OAuth collaborators the device flow
// consumes: the token-issuance engine reached once a poll observes the
// authorized state, and the identity provider that authenticates users
// during verification.
package oauth

import (
	"context"
	"errors"
	"time"
)

// Common errors returned by the collaborators
var (
	ErrInvalidGrant        = errors.New("invalid grant")
	ErrInvalidToken        = errors.New("invalid token")
	ErrIssuerUnavailable   = errors.New("token issuer unavailable")
	ErrProviderUnavailable = errors.New("identity provider unavailable")
)

// Token is an issued OAuth2 access token
type Token struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// GrantRequest carries the approved device authorization to the issuer
type GrantRequest struct {
	ClientID string
	UserID   string
	Scopes   []string
}

// TokenIssuer mints access and refresh tokens for an approved device
// authorization. Token formats, signing and storage are its concern alone.
type TokenIssuer interface {
	// IssueDeviceToken issues tokens for the given approved grant
	IssueDeviceToken(ctx context.Context, grant GrantRequest) (*Token, error)

	// CheckHealth verifies the issuer is reachable
	CheckHealth(ctx context.Context) error
}

// UserInfo identifies an authenticated principal
type UserInfo struct {
	Subject  string `json:"sub"`
	Username string `json:"preferred_username,omitempty"`
	Email    string `json:"email,omitempty"`
}

// IdentityProvider resolves an access token obtained during the verification
// login round trip to the principal it represents.
type IdentityProvider interface {
	// UserInfo returns the principal behind an access token
	UserInfo(ctx context.Context, accessToken string) (*UserInfo, error)

	// CheckHealth verifies the provider is reachable
	CheckHealth(ctx context.Context) error
}
