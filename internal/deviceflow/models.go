package deviceflow

import "time"

// DeviceAuthorization is the central record of a pending, approved or denied
// device authorization. It is a plain value: the Flow and Store exchange
// copies, and every state transition is a conditional write keyed on Version.
type DeviceAuthorization struct {
	// ID is an opaque correlation identifier. It is the only per-record
	// identifier that may appear in logs; the codes themselves never do.
	ID string `json:"id"`

	DeviceCode string `json:"device_code"`
	UserCode   string `json:"user_code"` // normalized form
	ClientID   string `json:"client_id"`

	Scopes []string `json:"scopes,omitempty"`

	// UserID identifies the principal who approved the device. Empty until
	// the record is authorized; never set on a denied record.
	UserID     string `json:"user_id,omitempty"`
	Authorized bool   `json:"authorized"`
	Denied     bool   `json:"denied"`

	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	AuthorizedAt time.Time `json:"authorized_at"`
	LastPolledAt time.Time `json:"last_polled_at"`

	// PollInterval is the minimum number of seconds the client must wait
	// between polls. Premature polls increase it (slow_down penalty).
	PollInterval int `json:"poll_interval"`

	// Version guards conditional updates. The store accepts an update only
	// when the stored version matches, and increments it on success.
	Version int64 `json:"version"`
}

// Expired reports whether the record is past its absolute expiry at t.
func (a DeviceAuthorization) Expired(t time.Time) bool {
	return !t.Before(a.ExpiresAt)
}

// Grant is the device authorization response returned to the requesting
// client per RFC 8628 section 3.2. UserCode is in display format.
type Grant struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete,omitempty"`
	ExpiresIn               int    `json:"expires_in"`
	Interval                int    `json:"interval"`
}

// PollState describes the outcome of a token endpoint poll. The values are
// the RFC 8628 section 3.5 error codes, plus "authorized" for the success
// state in which the caller proceeds to token issuance.
type PollState string

const (
	PollStatePending    PollState = "authorization_pending"
	PollStateSlowDown   PollState = "slow_down"
	PollStateExpired    PollState = "expired_token"
	PollStateDenied     PollState = "access_denied"
	PollStateAuthorized PollState = "authorized"
)

// PollResult is the outcome of a single poll.
type PollResult struct {
	State PollState

	// Interval is the minimum seconds until the next poll. Set for the
	// pending and slow_down states.
	Interval int

	// Authorization carries the approved record when State is
	// PollStateAuthorized, so the caller can hand client, user and scopes
	// to the token issuer.
	Authorization DeviceAuthorization
}

// CleanupStats reports what a single Cleanup pass removed.
type CleanupStats struct {
	Expired            int // unauthorized records past expires_at
	RetainedAuthorized int // authorized records past the retention window
}
