package verify

import (
	"errors"
	"net/http"

	"github.com/wrale/oauth2-device-authz/internal/deviceflow"
	"github.com/wrale/oauth2-device-authz/internal/templates"
)

// HandleConsent processes the approve/deny submission. The consent ticket
// carries the authenticated subject and the user code; approval binds them,
// denial records the terminal denied state without a principal.
func (h *Handler) HandleConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		h.renderError(w, http.StatusBadRequest,
			"Invalid Request", "Unable to process form submission.")
		return
	}

	if err := h.csrf.ValidateToken(ctx, r.PostFormValue("csrf_token")); err != nil {
		h.renderError(w, http.StatusBadRequest,
			"Invalid Request", "Please start over and try again.")
		return
	}

	claims, err := h.tickets.Verify(r.PostFormValue("ticket"))
	if err != nil {
		h.renderError(w, http.StatusBadRequest,
			"Session Expired", "Your approval session expired. Please start over.")
		return
	}
	if claims.Subject == "" {
		// A login ticket replayed against the consent endpoint
		h.renderError(w, http.StatusBadRequest,
			"Invalid Request", "Please start over and try again.")
		return
	}

	switch r.PostFormValue("action") {
	case "approve":
		err = h.flow.Authorize(ctx, claims.UserCode, claims.Subject)
	case "deny":
		err = h.flow.Deny(ctx, claims.UserCode)
	default:
		h.renderError(w, http.StatusBadRequest,
			"Invalid Request", "Choose Approve or Deny.")
		return
	}

	if err != nil {
		h.renderDecisionError(w, err)
		return
	}

	if r.PostFormValue("action") == "approve" {
		h.renderDone(w, "Device Authorized",
			"You have approved the device. You may close this window; the device will finish connecting on its own.")
		return
	}
	h.renderDone(w, "Device Denied",
		"You have denied the device. You may close this window.")
}

func (h *Handler) renderDone(w http.ResponseWriter, title, message string) {
	if err := h.templates.RenderDone(w, templates.DoneData{
		Title:   title,
		Message: message,
	}); err != nil {
		http.Error(w, "error rendering page", http.StatusInternalServerError)
	}
}

func (h *Handler) renderDecisionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, deviceflow.ErrAlreadyAuthorized):
		h.renderError(w, http.StatusConflict,
			"Already Authorized", "This code was already approved and cannot be changed.")
	case errors.Is(err, deviceflow.ErrAccessDenied):
		h.renderError(w, http.StatusConflict,
			"Already Denied", "This code was already denied.")
	case errors.Is(err, deviceflow.ErrExpired), errors.Is(err, deviceflow.ErrNotFound):
		h.renderError(w, http.StatusBadRequest,
			"Code No Longer Valid", "The code expired before a decision was made. Request a new one on your device.")
	default:
		h.log.WithError(err).Error("consent decision failed")
		h.renderError(w, http.StatusInternalServerError,
			"System Error", "Unable to record your decision. Please try again.")
	}
}
