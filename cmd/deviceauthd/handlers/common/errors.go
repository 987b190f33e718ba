// Package common provides shared response helpers for the OAuth endpoints
package common

import (
	"encoding/json"
	"net/http"
	"strings"
)

// ErrorResponse is the RFC 8628 / RFC 6749 error body
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// SetJSONHeaders sets required headers for JSON responses per RFC 8628
func SetJSONHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json")
}

// WriteError sends a standardized 400 error response per RFC 8628 section 3.5
func WriteError(w http.ResponseWriter, code string, description string) {
	WriteErrorStatus(w, http.StatusBadRequest, code, description)
}

// WriteErrorStatus sends a standardized error response with the given status
func WriteErrorStatus(w http.ResponseWriter, status int, code string, description string) {
	SetJSONHeaders(w)

	response := ErrorResponse{
		Error:            code,
		ErrorDescription: strings.TrimSpace(description),
	}

	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		WriteJSONError(w, err)
		return
	}
}

// WriteJSONError handles JSON encoding failures with a standardized response
func WriteJSONError(w http.ResponseWriter, err error) {
	SetJSONHeaders(w)
	w.WriteHeader(http.StatusInternalServerError)

	errResponse := []byte(`{"error":"server_error","error_description":"Failed to encode response"}`)
	if _, writeErr := w.Write(errResponse); writeErr != nil {
		return
	}
}

// RejectDuplicateParams enforces the RFC 8628 sections 3.1/3.4 requirement
// that request parameters appear at most once. Returns false after writing an
// error response when a duplicate is present.
func RejectDuplicateParams(w http.ResponseWriter, form map[string][]string) bool {
	for key, values := range form {
		if len(values) > 1 {
			WriteError(w, "invalid_request", "Parameters MUST NOT be included more than once: "+key)
			return false
		}
	}
	return true
}
