package deviceflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/wrale/oauth2-device-authz/internal/validation"
)

// RequestAuthorization initiates a new device authorization for an
// authenticated client per RFC 8628 section 3.1. scope is the raw
// space-delimited scope string from the request and may be empty.
//
// Code generation retries on collision up to the configured attempt bound;
// the store's uniqueness constraint is the authoritative backstop.
func (f *Flow) RequestAuthorization(ctx context.Context, clientID, scope string) (Grant, error) {
	now := f.now()
	expiresAt := now.Add(f.codeLifetime)

	auth := DeviceAuthorization{
		ID:           uuid.NewString(),
		ClientID:     clientID,
		Scopes:       parseScope(scope),
		CreatedAt:    now,
		ExpiresAt:    expiresAt,
		PollInterval: int(f.pollInterval.Seconds()),
		Version:      1,
	}

	for attempt := 1; ; attempt++ {
		if attempt > f.maxGenAttempts {
			f.logger.WithFields(map[string]interface{}{
				"authorization_id": auth.ID,
				"client_id":        clientID,
				"attempts":         f.maxGenAttempts,
			}).Error("code generation exhausted")
			return Grant{}, ErrGenerationExhausted
		}

		deviceCode, err := generateDeviceCode()
		if err != nil {
			return Grant{}, fmt.Errorf("generating device code: %w", err)
		}
		userCode, err := generateUserCode(f.userCodeAlphabet, f.userCodeLength)
		if err != nil {
			return Grant{}, fmt.Errorf("generating user code: %w", err)
		}

		auth.DeviceCode = deviceCode
		auth.UserCode = userCode

		err = f.store.Create(ctx, auth)
		if err == nil {
			break
		}
		if errors.Is(err, ErrDuplicateCode) {
			continue
		}
		return Grant{}, fmt.Errorf("creating device authorization: %w", err)
	}

	verificationURI, verificationURIComplete := f.buildVerificationURIs(auth.UserCode)

	f.logger.WithFields(map[string]interface{}{
		"authorization_id": auth.ID,
		"client_id":        clientID,
		"expires_in":       int(f.codeLifetime.Seconds()),
	}).Info("device authorization issued")

	return Grant{
		DeviceCode:              auth.DeviceCode,
		UserCode:                validation.FormatCode(auth.UserCode),
		VerificationURI:         verificationURI,
		VerificationURIComplete: verificationURIComplete,
		ExpiresIn:               int(expiresAt.Sub(now).Seconds()),
		Interval:                auth.PollInterval,
	}, nil
}

// parseScope splits a space-delimited scope string into an ordered set,
// dropping duplicates while preserving first occurrence order.
func parseScope(scope string) []string {
	if scope == "" {
		return nil
	}

	var scopes []string
	seen := make(map[string]struct{})
	for _, s := range strings.Fields(scope) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		scopes = append(scopes, s)
	}
	return scopes
}
