package deviceflow

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Option configures the device flow manager
type Option func(*Flow)

// WithCodeLifetime sets the device code lifetime; expires_in is derived from it
func WithCodeLifetime(d time.Duration) Option {
	return func(f *Flow) {
		f.codeLifetime = d
	}
}

// WithPollInterval sets the minimum polling interval. Values below
// MinPollInterval are raised to it per RFC 8628 section 3.5.
func WithPollInterval(d time.Duration) Option {
	return func(f *Flow) {
		f.pollInterval = d
	}
}

// WithUserCodeLength sets the normalized user code length
func WithUserCodeLength(length int) Option {
	return func(f *Flow) {
		f.userCodeLength = length
	}
}

// WithUserCodeAlphabet sets the user code alphabet. The default excludes
// visually ambiguous characters and should rarely be changed.
func WithUserCodeAlphabet(alphabet string) Option {
	return func(f *Flow) {
		f.userCodeAlphabet = alphabet
	}
}

// WithMaxGenerationAttempts bounds the collision retry loop during issuance
func WithMaxGenerationAttempts(n int) Option {
	return func(f *Flow) {
		f.maxGenAttempts = n
	}
}

// WithAuthorizedRetention sets how long approved records are retained past
// authorization before cleanup removes them
func WithAuthorizedRetention(d time.Duration) Option {
	return func(f *Flow) {
		f.authorizedRetention = d
	}
}

// WithCleanupBatchSize bounds the number of records removed per delete batch
func WithCleanupBatchSize(n int) Option {
	return func(f *Flow) {
		f.cleanupBatchSize = n
	}
}

// WithLogger sets the structured logger used for flow events
func WithLogger(logger logrus.FieldLogger) Option {
	return func(f *Flow) {
		f.logger = logger
	}
}
