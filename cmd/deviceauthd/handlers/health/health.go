// Package health provides the health check endpoint
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Checker verifies a component is operational
type Checker interface {
	CheckHealth(ctx context.Context) error
}

// Response is the health check response body
type Response struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

// Handler reports the health of the service's dependencies
type Handler struct {
	checkers map[string]Checker
	timeout  time.Duration
}

// New creates a health check handler over named component checkers
func New(checkers map[string]Checker) *Handler {
	return &Handler{
		checkers: checkers,
		timeout:  5 * time.Second,
	}
}

// ServeHTTP handles health check requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp := Response{
		Status:     "ok",
		Components: make(map[string]string, len(h.checkers)),
	}

	status := http.StatusOK
	for name, checker := range h.checkers {
		if err := checker.CheckHealth(ctx); err != nil {
			resp.Status = "degraded"
			resp.Components[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Components[name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		return
	}
}
