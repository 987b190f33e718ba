package deviceflow

import "errors"

// Common errors that may occur during the device authorization flow
var (
	// ErrNotFound indicates no live record matches the presented code
	ErrNotFound = errors.New("device authorization not found")

	// ErrExpired indicates the device or user code is past its expiry
	ErrExpired = errors.New("device authorization expired")

	// ErrAlreadyAuthorized indicates the record was already approved; a user
	// code must not be re-bindable to a different principal
	ErrAlreadyAuthorized = errors.New("device authorization already approved")

	// ErrAccessDenied indicates the user explicitly denied the device
	ErrAccessDenied = errors.New("device authorization denied")

	// ErrGenerationExhausted indicates code generation hit the collision
	// retry bound; surfaced to clients as a transient server error
	ErrGenerationExhausted = errors.New("code generation attempts exhausted")

	// ErrCryptoUnavailable indicates the secure random source failed.
	// Never retried and never degraded to a weaker source.
	ErrCryptoUnavailable = errors.New("secure random source unavailable")
)

// OAuth error codes used in RFC 8628 responses
const (
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeInvalidClient        = "invalid_client"
	ErrorCodeInvalidGrant         = "invalid_grant"
	ErrorCodeUnsupportedGrant     = "unsupported_grant_type"
	ErrorCodeAuthorizationPending = "authorization_pending"
	ErrorCodeSlowDown             = "slow_down"
	ErrorCodeExpiredToken         = "expired_token"
	ErrorCodeAccessDenied         = "access_denied"
	ErrorCodeServerError          = "server_error"
)

// FlowError is an error carrying an OAuth error code for the HTTP layer.
type FlowError struct {
	Code        string
	Description string
}

func (e *FlowError) Error() string {
	return e.Code + ": " + e.Description
}

// NewFlowError creates a FlowError with the given code and description.
func NewFlowError(code, description string) *FlowError {
	return &FlowError{Code: code, Description: description}
}
