// Package deviceflow implements the OAuth 2.0 Device Authorization Grant (RFC 8628)
package deviceflow

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wrale/oauth2-device-authz/internal/validation"
)

const (
	// DefaultCodeLifetime is the default device code lifetime
	DefaultCodeLifetime = 15 * time.Minute

	// MinPollInterval is the minimum interval between polls per RFC 8628
	MinPollInterval = 5 * time.Second

	// SlowDownIncrement is added to a record's poll interval on every
	// premature poll, per RFC 8628 section 3.5
	SlowDownIncrement = 5 * time.Second

	// DefaultMaxGenerationAttempts bounds the code generation retry loop
	DefaultMaxGenerationAttempts = 10

	// DefaultAuthorizedRetention is how long approved records are kept past
	// authorization before cleanup removes them
	DefaultAuthorizedRetention = 24 * time.Hour

	// DefaultCleanupBatchSize bounds a single cleanup delete batch
	DefaultCleanupBatchSize = 500
)

// Flow orchestrates issuance, polling, verification and cleanup of device
// authorizations. It holds no mutable state of its own; all state lives in
// the Store so multiple instances can serve the same records concurrently.
type Flow struct {
	store               Store
	baseURL             string
	logger              logrus.FieldLogger
	codeLifetime        time.Duration
	pollInterval        time.Duration
	userCodeLength      int
	userCodeAlphabet    string
	maxGenAttempts      int
	authorizedRetention time.Duration
	cleanupBatchSize    int

	now func() time.Time
}

// New creates a device flow manager with the provided options. baseURL is the
// externally visible origin used to build verification URIs.
func New(store Store, baseURL string, opts ...Option) *Flow {
	f := &Flow{
		store:               store,
		baseURL:             baseURL,
		logger:              logrus.StandardLogger(),
		codeLifetime:        DefaultCodeLifetime,
		pollInterval:        MinPollInterval,
		userCodeLength:      validation.DefaultLength,
		userCodeAlphabet:    validation.Alphabet,
		maxGenAttempts:      DefaultMaxGenerationAttempts,
		authorizedRetention: DefaultAuthorizedRetention,
		cleanupBatchSize:    DefaultCleanupBatchSize,
		now:                 time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.pollInterval < MinPollInterval {
		f.pollInterval = MinPollInterval
	}

	return f
}

// CheckHealth verifies the flow manager's storage backend is healthy
func (f *Flow) CheckHealth(ctx context.Context) error {
	return f.store.CheckHealth(ctx)
}
