// Package test provides in-memory fakes shared by the handler tests
package test

import (
	"context"
	"sync"
	"time"

	"github.com/wrale/oauth2-device-authz/internal/deviceflow"
	"github.com/wrale/oauth2-device-authz/internal/oauth"
)

// Store is an in-memory deviceflow.Store honoring the conditional write
// contract, so handler tests exercise a real Flow end to end.
type Store struct {
	mu        sync.Mutex
	records   map[string]deviceflow.DeviceAuthorization
	userCodes map[string]string
	healthErr error
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		records:   make(map[string]deviceflow.DeviceAuthorization),
		userCodes: make(map[string]string),
	}
}

// SetHealthError makes CheckHealth fail with the given error
func (s *Store) SetHealthError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthErr = err
}

// Create stores a new record, failing on device or user code collision
func (s *Store) Create(ctx context.Context, auth deviceflow.DeviceAuthorization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[auth.DeviceCode]; exists {
		return deviceflow.ErrDuplicateCode
	}
	if _, exists := s.userCodes[auth.UserCode]; exists {
		return deviceflow.ErrDuplicateCode
	}
	s.records[auth.DeviceCode] = auth
	s.userCodes[auth.UserCode] = auth.DeviceCode
	return nil
}

// GetByDeviceCode retrieves a record by device code
func (s *Store) GetByDeviceCode(ctx context.Context, deviceCode string) (deviceflow.DeviceAuthorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	auth, exists := s.records[deviceCode]
	if !exists {
		return deviceflow.DeviceAuthorization{}, deviceflow.ErrNotFound
	}
	return auth, nil
}

// GetByUserCode retrieves a record by normalized user code
func (s *Store) GetByUserCode(ctx context.Context, userCode string) (deviceflow.DeviceAuthorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deviceCode, exists := s.userCodes[userCode]
	if !exists {
		return deviceflow.DeviceAuthorization{}, deviceflow.ErrNotFound
	}
	return s.records[deviceCode], nil
}

// Update applies a conditional write keyed on the record's version
func (s *Store) Update(ctx context.Context, auth deviceflow.DeviceAuthorization) (deviceflow.DeviceAuthorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, exists := s.records[auth.DeviceCode]
	if !exists {
		return deviceflow.DeviceAuthorization{}, deviceflow.ErrNotFound
	}
	if current.Version != auth.Version {
		return deviceflow.DeviceAuthorization{}, deviceflow.ErrStoreConflict
	}
	auth.Version++
	s.records[auth.DeviceCode] = auth
	return auth, nil
}

// DeleteExpiredBefore removes unauthorized records past expiry
func (s *Store) DeleteExpiredBefore(ctx context.Context, cutoff time.Time, batchSize int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for deviceCode, auth := range s.records {
		if deleted >= batchSize {
			break
		}
		if !auth.Authorized && !cutoff.Before(auth.ExpiresAt) {
			delete(s.records, deviceCode)
			delete(s.userCodes, auth.UserCode)
			deleted++
		}
	}
	return deleted, nil
}

// DeleteAuthorizedBefore removes authorized records past the retention cutoff
func (s *Store) DeleteAuthorizedBefore(ctx context.Context, cutoff time.Time, batchSize int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for deviceCode, auth := range s.records {
		if deleted >= batchSize {
			break
		}
		if auth.Authorized && !cutoff.Before(auth.AuthorizedAt) {
			delete(s.records, deviceCode)
			delete(s.userCodes, auth.UserCode)
			deleted++
		}
	}
	return deleted, nil
}

// CheckHealth reports the configured health state
func (s *Store) CheckHealth(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthErr
}

// Issuer is a configurable oauth.TokenIssuer fake
type Issuer struct {
	// Token is returned by IssueDeviceToken when Err is nil
	Token oauth.Token

	// Err fails IssueDeviceToken when set
	Err error

	// LastRequest records the most recent grant request
	LastRequest oauth.GrantRequest
}

// IssueDeviceToken returns the configured token or error
func (i *Issuer) IssueDeviceToken(ctx context.Context, req oauth.GrantRequest) (*oauth.Token, error) {
	i.LastRequest = req
	if i.Err != nil {
		return nil, i.Err
	}
	token := i.Token
	return &token, nil
}

// CheckHealth always succeeds
func (i *Issuer) CheckHealth(ctx context.Context) error { return nil }

// Identity is a configurable oauth.IdentityProvider fake
type Identity struct {
	// Info is returned by UserInfo when Err is nil
	Info oauth.UserInfo

	// Err fails UserInfo when set
	Err error
}

// UserInfo returns the configured user info or error
func (i *Identity) UserInfo(ctx context.Context, accessToken string) (*oauth.UserInfo, error) {
	if i.Err != nil {
		return nil, i.Err
	}
	info := i.Info
	return &info, nil
}

// CheckHealth always succeeds
func (i *Identity) CheckHealth(ctx context.Context) error { return nil }

var _ deviceflow.Store = (*Store)(nil)
var _ oauth.TokenIssuer = (*Issuer)(nil)
var _ oauth.IdentityProvider = (*Identity)(nil)
