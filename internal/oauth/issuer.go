package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// HTTPIssuer implements TokenIssuer against the token engine's private
// device-grant endpoint. Requests are authenticated with a shared bearer
// secret; this endpoint is never exposed to OAuth clients.
type HTTPIssuer struct {
	client    *http.Client
	grantURL  string
	healthURL string
	secret    string
}

// HTTPIssuerConfig configures the issuer client
type HTTPIssuerConfig struct {
	// BaseURL is the token engine origin, e.g. https://issuer.internal
	BaseURL string
	// Secret authenticates this service to the issuer
	Secret string
}

// NewHTTPIssuer creates a token issuer client
func NewHTTPIssuer(cfg HTTPIssuerConfig) (*HTTPIssuer, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("issuer base URL is required")
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid issuer base URL: %w", err)
	}

	return &HTTPIssuer{
		client:    &http.Client{Timeout: defaultTimeout},
		grantURL:  baseURL + "/internal/device-grant",
		healthURL: baseURL + "/healthz",
		secret:    cfg.Secret,
	}, nil
}

// IssueDeviceToken asks the token engine to mint tokens for an approved grant
func (i *HTTPIssuer) IssueDeviceToken(ctx context.Context, grant GrantRequest) (*Token, error) {
	data := url.Values{
		"client_id": {grant.ClientID},
		"user_id":   {grant.UserID},
		"scope":     {strings.Join(grant.Scopes, " ")},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.grantURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating grant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+i.secret)

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending grant request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading grant response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		if err := json.Unmarshal(body, &errResp); err != nil {
			return nil, fmt.Errorf("grant request failed: %s", resp.Status)
		}
		if errResp.Error == "invalid_grant" {
			return nil, ErrInvalidGrant
		}
		return nil, fmt.Errorf("grant request failed: %s: %s", errResp.Error, errResp.ErrorDescription)
	}

	var tokenResp struct {
		AccessToken  string `json:"access_token"`
		TokenType    string `json:"token_type"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
		Scope        string `json:"scope"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("parsing grant response: %w", err)
	}

	return &Token{
		AccessToken:  tokenResp.AccessToken,
		TokenType:    tokenResp.TokenType,
		RefreshToken: tokenResp.RefreshToken,
		Scope:        tokenResp.Scope,
		ExpiresAt:    time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second),
	}, nil
}

// CheckHealth verifies the token engine is reachable
func (i *HTTPIssuer) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.healthURL, nil)
	if err != nil {
		return fmt.Errorf("creating health check request: %w", err)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending health check request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ErrIssuerUnavailable
	}
	return nil
}
