package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// HTTPIdentityProvider implements IdentityProvider against a standard OIDC
// userinfo endpoint.
type HTTPIdentityProvider struct {
	client      *http.Client
	userinfoURL string
	healthURL   string
}

// HTTPIdentityProviderConfig configures the identity provider client
type HTTPIdentityProviderConfig struct {
	// UserinfoURL is the provider's userinfo endpoint
	UserinfoURL string
}

// NewHTTPIdentityProvider creates an identity provider client
func NewHTTPIdentityProvider(cfg HTTPIdentityProviderConfig) (*HTTPIdentityProvider, error) {
	if cfg.UserinfoURL == "" {
		return nil, fmt.Errorf("userinfo URL is required")
	}
	parsed, err := url.Parse(cfg.UserinfoURL)
	if err != nil {
		return nil, fmt.Errorf("invalid userinfo URL: %w", err)
	}

	origin := *parsed
	origin.Path = "/.well-known/openid-configuration"
	origin.RawQuery = ""

	return &HTTPIdentityProvider{
		client:      &http.Client{Timeout: defaultTimeout},
		userinfoURL: cfg.UserinfoURL,
		healthURL:   origin.String(),
	}, nil
}

// UserInfo resolves an access token to the authenticated principal
func (p *HTTPIdentityProvider) UserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, ErrInvalidToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userinfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending userinfo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrInvalidToken
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo request failed: %s", resp.Status)
	}

	var info UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("parsing userinfo response: %w", err)
	}
	if info.Subject == "" {
		return nil, ErrInvalidToken
	}

	return &info, nil
}

// CheckHealth verifies the identity provider is reachable
func (p *HTTPIdentityProvider) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.healthURL, nil)
	if err != nil {
		return fmt.Errorf("creating health check request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending health check request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ErrProviderUnavailable
	}
	return nil
}
