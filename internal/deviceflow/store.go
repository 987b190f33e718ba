package deviceflow

import (
	"context"
	"errors"
	"time"
)

// Store errors. Uniqueness and update conflicts are detected by the store,
// which is the authoritative backstop for both; the Flow's retry loops are
// advisory only.
var (
	// ErrDuplicateCode indicates the device or user code of a new record
	// collides with a live record
	ErrDuplicateCode = errors.New("device or user code already exists")

	// ErrStoreConflict indicates a concurrent writer updated the record
	// between read and write; the caller re-reads and retries once
	ErrStoreConflict = errors.New("conflicting device authorization update")
)

// Store defines the persistence interface for device authorization records.
// Implementations must enforce uniqueness of device and user codes among live
// records and apply updates conditionally, failing with ErrStoreConflict
// rather than silently overwriting.
type Store interface {
	// Create persists a new record, failing with ErrDuplicateCode if either
	// code is already held by a live record.
	Create(ctx context.Context, auth DeviceAuthorization) error

	// GetByDeviceCode retrieves a record by device code. Returns ErrNotFound
	// when no live record matches.
	GetByDeviceCode(ctx context.Context, deviceCode string) (DeviceAuthorization, error)

	// GetByUserCode retrieves a record by normalized user code. Returns
	// ErrNotFound when no live record matches.
	GetByUserCode(ctx context.Context, userCode string) (DeviceAuthorization, error)

	// Update persists auth if the stored version still matches auth.Version,
	// incrementing the version on success and returning the stored record.
	// Fails with ErrStoreConflict when a concurrent writer won the race and
	// ErrNotFound when the record no longer exists.
	Update(ctx context.Context, auth DeviceAuthorization) (DeviceAuthorization, error)

	// DeleteExpiredBefore removes up to batchSize unauthorized records whose
	// expiry is before cutoff, returning the number removed. Authorized
	// records are left to DeleteAuthorizedBefore.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time, batchSize int) (int, error)

	// DeleteAuthorizedBefore removes up to batchSize authorized records
	// approved before cutoff, returning the number removed.
	DeleteAuthorizedBefore(ctx context.Context, cutoff time.Time, batchSize int) (int, error)

	// CheckHealth verifies the storage backend is reachable
	CheckHealth(ctx context.Context) error
}
