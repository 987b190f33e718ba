// Package verify implements the user verification flow per RFC 8628 section 3.3:
// code entry, login at the identity provider, then explicit approve/deny.
package verify

import (
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/wrale/oauth2-device-authz/internal/csrf"
	"github.com/wrale/oauth2-device-authz/internal/deviceflow"
	oauthx "github.com/wrale/oauth2-device-authz/internal/oauth"
	"github.com/wrale/oauth2-device-authz/internal/templates"
	"github.com/wrale/oauth2-device-authz/internal/ticket"
)

// Handler processes the user-facing verification flow. It never exposes
// device codes or internal record identifiers to the browser; everything the
// browser round-trips is the user code, carried in signed tickets.
type Handler struct {
	flow      *deviceflow.Flow
	templates *templates.Templates
	csrf      *csrf.Manager
	tickets   *ticket.Manager
	oauth     *oauth2.Config
	identity  oauthx.IdentityProvider
	log       logrus.FieldLogger
}

// Config contains handler configuration
type Config struct {
	Flow      *deviceflow.Flow
	Templates *templates.Templates
	CSRF      *csrf.Manager
	Tickets   *ticket.Manager
	OAuth     *oauth2.Config
	Identity  oauthx.IdentityProvider
	Logger    logrus.FieldLogger
}

// New creates a verification flow handler
func New(cfg Config) *Handler {
	return &Handler{
		flow:      cfg.Flow,
		templates: cfg.Templates,
		csrf:      cfg.CSRF,
		tickets:   cfg.Tickets,
		oauth:     cfg.OAuth,
		identity:  cfg.Identity,
		log:       cfg.Logger,
	}
}

// HandleForm shows the code entry form, prefilled when the user followed
// verification_uri_complete.
func (h *Handler) HandleForm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	csrfToken, err := h.csrf.GenerateToken(ctx)
	if err != nil {
		h.renderError(w, http.StatusInternalServerError,
			"System Error", "Unable to process request. Please try again.")
		return
	}

	h.renderVerify(w, http.StatusOK, templates.VerifyData{
		PrefilledCode: r.URL.Query().Get("code"),
		CSRFToken:     csrfToken,
	})
}

// HandleSubmit validates the entered code and redirects to the identity
// provider for login. The user code travels in a signed login ticket inside
// the OAuth state parameter.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		h.renderError(w, http.StatusBadRequest,
			"Invalid Request", "Unable to process form submission.")
		return
	}

	if err := h.csrf.ValidateToken(ctx, r.PostFormValue("csrf_token")); err != nil {
		h.renderError(w, http.StatusBadRequest,
			"Invalid Request", "Please try submitting the form again.")
		return
	}

	code := r.PostFormValue("code")
	if code == "" {
		h.retryVerify(w, r, "Enter the code displayed on your device.")
		return
	}

	auth, err := h.flow.VerifyUserCode(ctx, code)
	if err != nil {
		h.retryVerify(w, r, verifyErrorMessage(err))
		return
	}

	state, err := h.tickets.Issue(ticket.Claims{UserCode: auth.UserCode})
	if err != nil {
		h.log.WithError(err).Error("issuing login ticket failed")
		h.renderError(w, http.StatusInternalServerError,
			"System Error", "Unable to process request. Please try again.")
		return
	}

	http.Redirect(w, r, h.oauth.AuthCodeURL(state), http.StatusFound)
}

// retryVerify re-renders the code entry form with an error and a fresh CSRF
// token; the submitted one was consumed.
func (h *Handler) retryVerify(w http.ResponseWriter, r *http.Request, message string) {
	csrfToken, err := h.csrf.GenerateToken(r.Context())
	if err != nil {
		h.renderError(w, http.StatusInternalServerError,
			"System Error", "Unable to process request. Please try again.")
		return
	}
	h.renderVerify(w, http.StatusBadRequest, templates.VerifyData{
		Error:     message,
		CSRFToken: csrfToken,
	})
}

func (h *Handler) renderVerify(w http.ResponseWriter, status int, data templates.VerifyData) {
	w.WriteHeader(status)
	if err := h.templates.RenderVerify(w, data); err != nil {
		http.Error(w, "error rendering page", http.StatusInternalServerError)
	}
}

func (h *Handler) renderError(w http.ResponseWriter, status int, title, message string) {
	w.WriteHeader(status)
	if err := h.templates.RenderError(w, templates.ErrorData{
		Title:   title,
		Message: message,
	}); err != nil {
		http.Error(w, "error rendering page", http.StatusInternalServerError)
	}
}

// verifyErrorMessage maps flow errors to user-facing feedback without leaking
// record state beyond what the user needs.
func verifyErrorMessage(err error) string {
	var flowErr *deviceflow.FlowError
	switch {
	case errors.As(err, &flowErr):
		return "That code doesn't look right. Check it and try again."
	case errors.Is(err, deviceflow.ErrExpired):
		return "That code has expired. Request a new one on your device."
	case errors.Is(err, deviceflow.ErrAlreadyAuthorized):
		return "That code was already used. Request a new one on your device."
	case errors.Is(err, deviceflow.ErrAccessDenied):
		return "That code was already used. Request a new one on your device."
	default:
		return "Invalid or expired code. Please try again."
	}
}
