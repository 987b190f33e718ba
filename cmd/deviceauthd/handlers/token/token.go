// Package token handles device access token requests per RFC 8628 section 3.4
package token

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wrale/oauth2-device-authz/cmd/deviceauthd/handlers/common"
	"github.com/wrale/oauth2-device-authz/internal/clients"
	"github.com/wrale/oauth2-device-authz/internal/deviceflow"
	"github.com/wrale/oauth2-device-authz/internal/oauth"
)

// deviceGrantType is the device_code grant type URN per RFC 8628 section 3.4
const deviceGrantType = "urn:ietf:params:oauth:grant-type:device_code"

// TokenResponse is the successful token response per RFC 8628 section 3.5
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// Handler processes token polling requests. Once a poll observes the
// authorized state, token minting is delegated to the external issuer.
type Handler struct {
	flow    *deviceflow.Flow
	clients *clients.Registry
	issuer  oauth.TokenIssuer
	log     logrus.FieldLogger
}

// Config contains handler configuration
type Config struct {
	Flow    *deviceflow.Flow
	Clients *clients.Registry
	Issuer  oauth.TokenIssuer
	Logger  logrus.FieldLogger
}

// New creates a token request handler
func New(cfg Config) *Handler {
	return &Handler{
		flow:    cfg.Flow,
		clients: cfg.Clients,
		issuer:  cfg.Issuer,
		log:     cfg.Logger,
	}
}

// ServeHTTP handles token polling requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	common.SetJSONHeaders(w)

	if r.Method != http.MethodPost {
		common.WriteError(w, deviceflow.ErrorCodeInvalidRequest, "POST method required")
		return
	}

	if err := r.ParseForm(); err != nil {
		common.WriteError(w, deviceflow.ErrorCodeInvalidRequest, "Invalid request format")
		return
	}

	if !common.RejectDuplicateParams(w, r.Form) {
		return
	}

	grantType := r.Form.Get("grant_type")
	if grantType == "" {
		common.WriteError(w, deviceflow.ErrorCodeInvalidRequest, "The grant_type parameter is REQUIRED")
		return
	}
	if grantType != deviceGrantType {
		common.WriteError(w, deviceflow.ErrorCodeUnsupportedGrant,
			"Only "+deviceGrantType+" is supported")
		return
	}

	deviceCode := r.Form.Get("device_code")
	if deviceCode == "" {
		common.WriteError(w, deviceflow.ErrorCodeInvalidRequest, "The device_code parameter is REQUIRED")
		return
	}

	clientID := r.Form.Get("client_id")
	if clientID == "" {
		common.WriteError(w, deviceflow.ErrorCodeInvalidRequest, "The client_id parameter is REQUIRED")
		return
	}
	if _, err := h.clients.Authenticate(clientID, r.Form.Get("client_secret")); err != nil {
		common.WriteErrorStatus(w, http.StatusUnauthorized,
			deviceflow.ErrorCodeInvalidClient, "Client authentication failed")
		return
	}

	result, err := h.flow.Poll(r.Context(), deviceCode)
	if err != nil {
		h.log.WithError(err).WithField("client_id", clientID).Error("poll validation failed")
		common.WriteErrorStatus(w, http.StatusInternalServerError,
			deviceflow.ErrorCodeServerError, "An unexpected error occurred processing the request")
		return
	}

	switch result.State {
	case deviceflow.PollStatePending:
		common.WriteError(w, deviceflow.ErrorCodeAuthorizationPending,
			"The authorization request is still pending")
	case deviceflow.PollStateSlowDown:
		common.WriteError(w, deviceflow.ErrorCodeSlowDown,
			fmt.Sprintf("Polling interval increased to %d seconds", result.Interval))
	case deviceflow.PollStateExpired:
		common.WriteError(w, deviceflow.ErrorCodeExpiredToken,
			"The device_code has expired")
	case deviceflow.PollStateDenied:
		common.WriteError(w, deviceflow.ErrorCodeAccessDenied,
			"The user denied the authorization request")
	case deviceflow.PollStateAuthorized:
		h.issueToken(w, r, clientID, result.Authorization)
	default:
		common.WriteErrorStatus(w, http.StatusInternalServerError,
			deviceflow.ErrorCodeServerError, "An unexpected error occurred processing the request")
	}
}

// issueToken hands an approved authorization to the external issuer. The
// device code is bound to the client it was issued to; a different client
// presenting it gets invalid_grant.
func (h *Handler) issueToken(w http.ResponseWriter, r *http.Request, clientID string, auth deviceflow.DeviceAuthorization) {
	if auth.ClientID != clientID {
		common.WriteError(w, deviceflow.ErrorCodeInvalidGrant,
			"The device_code was not issued to this client")
		return
	}

	token, err := h.issuer.IssueDeviceToken(r.Context(), oauth.GrantRequest{
		ClientID: auth.ClientID,
		UserID:   auth.UserID,
		Scopes:   auth.Scopes,
	})
	if err != nil {
		h.log.WithError(err).WithFields(logrus.Fields{
			"authorization_id": auth.ID,
			"client_id":        auth.ClientID,
		}).Error("token issuance failed")
		common.WriteErrorStatus(w, http.StatusInternalServerError,
			deviceflow.ErrorCodeServerError, "Token issuance failed, please retry")
		return
	}

	resp := TokenResponse{
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		ExpiresIn:    int(time.Until(token.ExpiresAt).Seconds()),
		RefreshToken: token.RefreshToken,
		Scope:        token.Scope,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		common.WriteJSONError(w, err)
		return
	}
}
