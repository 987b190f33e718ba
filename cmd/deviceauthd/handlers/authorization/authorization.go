// Package authorization handles device authorization requests per RFC 8628 section 3.1
package authorization

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/wrale/oauth2-device-authz/cmd/deviceauthd/handlers/common"
	"github.com/wrale/oauth2-device-authz/internal/clients"
	"github.com/wrale/oauth2-device-authz/internal/deviceflow"
)

// Handler processes device authorization requests
type Handler struct {
	flow    *deviceflow.Flow
	clients *clients.Registry
	log     logrus.FieldLogger
}

// Config contains handler configuration
type Config struct {
	Flow    *deviceflow.Flow
	Clients *clients.Registry
	Logger  logrus.FieldLogger
}

// New creates a device authorization request handler
func New(cfg Config) *Handler {
	return &Handler{
		flow:    cfg.Flow,
		clients: cfg.Clients,
		log:     cfg.Logger,
	}
}

// ServeHTTP handles device authorization requests
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

	grant, err := h.flow.RequestAuthorization(r.Context(), clientID, r.Form.Get("scope"))
	if err != nil {
		if errors.Is(err, deviceflow.ErrGenerationExhausted) {
			// Transient: the code space is momentarily congested
			common.WriteErrorStatus(w, http.StatusInternalServerError,
				deviceflow.ErrorCodeServerError, "Unable to issue device code, please retry")
			return
		}
		h.log.WithError(err).WithField("client_id", clientID).Error("device authorization request failed")
		common.WriteErrorStatus(w, http.StatusInternalServerError,
			deviceflow.ErrorCodeServerError, "Failed to process device authorization request")
		return
	}

	if err := json.NewEncoder(w).Encode(grant); err != nil {
		common.WriteJSONError(w, err)
		return
	}
}
