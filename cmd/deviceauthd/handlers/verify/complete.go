package verify

import (
	"net/http"

	"github.com/wrale/oauth2-device-authz/internal/templates"
	"github.com/wrale/oauth2-device-authz/internal/ticket"
)

// HandleComplete processes the identity provider callback. The login ticket
// in the state parameter recovers the user code, the authorization code is
// exchanged for the user's identity, and the consent page is rendered with a
// consent ticket binding that identity to the pending code.
func (h *Handler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims, err := h.tickets.Verify(r.URL.Query().Get("state"))
	if err != nil {
		h.renderError(w, http.StatusBadRequest,
			"Invalid Request", "Unable to verify the login response. Please start over.")
		return
	}

	authCode := r.URL.Query().Get("code")
	if authCode == "" {
		h.renderError(w, http.StatusBadRequest,
			"Login Failed", "No authorization was received. Please start over.")
		return
	}

	token, err := h.oauth.Exchange(ctx, authCode)
	if err != nil {
		h.log.WithError(err).Warn("authorization code exchange failed")
		h.renderError(w, http.StatusBadRequest,
			"Login Failed", "Unable to complete login. Please start over.")
		return
	}

	user, err := h.identity.UserInfo(ctx, token.AccessToken)
	if err != nil {
		h.log.WithError(err).Warn("userinfo lookup failed")
		h.renderError(w, http.StatusBadRequest,
			"Login Failed", "Unable to confirm your identity. Please start over.")
		return
	}

	// Re-validate the code; it may have expired or been decided during login
	auth, err := h.flow.VerifyUserCode(ctx, claims.UserCode)
	if err != nil {
		h.renderError(w, http.StatusBadRequest,
			"Code No Longer Valid", verifyErrorMessage(err))
		return
	}

	consent, err := h.tickets.Issue(ticket.Claims{
		UserCode: auth.UserCode,
		Subject:  user.Subject,
	})
	if err != nil {
		h.log.WithError(err).Error("issuing consent ticket failed")
		h.renderError(w, http.StatusInternalServerError,
			"System Error", "Unable to process request. Please start over.")
		return
	}

	csrfToken, err := h.csrf.GenerateToken(ctx)
	if err != nil {
		h.renderError(w, http.StatusInternalServerError,
			"System Error", "Unable to process request. Please start over.")
		return
	}

	if err := h.templates.RenderConsent(w, templates.ConsentData{
		ClientID:  auth.ClientID,
		Scopes:    auth.Scopes,
		Username:  user.Username,
		Ticket:    consent,
		CSRFToken: csrfToken,
	}); err != nil {
		http.Error(w, "error rendering page", http.StatusInternalServerError)
	}
}
