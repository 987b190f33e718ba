package deviceflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// deviceAuthorizationRow is the relational shape of a DeviceAuthorization.
// Unique indexes on both codes are the authoritative uniqueness backstop,
// and the version column guards conditional updates.
type deviceAuthorizationRow struct {
	DeviceCode   string `gorm:"column:device_code;primaryKey"`
	UserCode     string `gorm:"column:user_code;uniqueIndex;not null"`
	ID           string `gorm:"column:correlation_id;not null"`
	ClientID     string `gorm:"column:client_id;not null"`
	Scopes       datatypes.JSON
	UserID       string
	Authorized   bool `gorm:"index"`
	Denied       bool
	CreatedAt    time.Time
	ExpiresAt    time.Time `gorm:"index"`
	AuthorizedAt *time.Time
	LastPolledAt *time.Time
	PollInterval int
	Version      int64 `gorm:"not null"`
}

func (deviceAuthorizationRow) TableName() string { return "device_authorizations" }

// PostgresStore implements the Store interface on Postgres via GORM
type PostgresStore struct {
	db *gorm.DB
}

// NewPostgresStore creates a Postgres-backed store. The *gorm.DB must be
// opened with TranslateError so duplicate-key violations surface as
// gorm.ErrDuplicatedKey.
func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates or updates the backing table
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&deviceAuthorizationRow{})
}

// CheckHealth verifies database connectivity
func (s *PostgresStore) CheckHealth(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("postgres health check failed: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres health check failed: %w", err)
	}
	return nil
}

// Create inserts a new record, relying on the unique indexes to reject
// device or user code collisions.
func (s *PostgresStore) Create(ctx context.Context, auth DeviceAuthorization) error {
	row, err := toRow(auth)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateCode
		}
		return fmt.Errorf("creating device authorization: %w", err)
	}
	return nil
}

// GetByDeviceCode retrieves a record by device code
func (s *PostgresStore) GetByDeviceCode(ctx context.Context, deviceCode string) (DeviceAuthorization, error) {
	var row deviceAuthorizationRow
	err := s.db.WithContext(ctx).Where("device_code = ?", deviceCode).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DeviceAuthorization{}, ErrNotFound
	}
	if err != nil {
		return DeviceAuthorization{}, fmt.Errorf("getting device authorization: %w", err)
	}
	return fromRow(row)
}

// GetByUserCode retrieves a record by its normalized user code
func (s *PostgresStore) GetByUserCode(ctx context.Context, userCode string) (DeviceAuthorization, error) {
	var row deviceAuthorizationRow
	err := s.db.WithContext(ctx).Where("user_code = ?", userCode).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DeviceAuthorization{}, ErrNotFound
	}
	if err != nil {
		return DeviceAuthorization{}, fmt.Errorf("getting device authorization: %w", err)
	}
	return fromRow(row)
}

// Update applies a conditional write keyed on the version column. Zero rows
// affected means either a concurrent writer won or the record is gone; a
// follow-up existence check picks the right error.
func (s *PostgresStore) Update(ctx context.Context, auth DeviceAuthorization) (DeviceAuthorization, error) {
	next := auth
	next.Version++
	row, err := toRow(next)
	if err != nil {
		return DeviceAuthorization{}, err
	}

	res := s.db.WithContext(ctx).
		Model(&deviceAuthorizationRow{}).
		Where("device_code = ? AND version = ?", auth.DeviceCode, auth.Version).
		Select("*").
		Updates(&row)
	if res.Error != nil {
		return DeviceAuthorization{}, fmt.Errorf("updating device authorization: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		err := s.db.WithContext(ctx).
			Model(&deviceAuthorizationRow{}).
			Where("device_code = ?", auth.DeviceCode).
			Count(&count).Error
		if err != nil {
			return DeviceAuthorization{}, fmt.Errorf("checking update conflict: %w", err)
		}
		if count == 0 {
			return DeviceAuthorization{}, ErrNotFound
		}
		return DeviceAuthorization{}, ErrStoreConflict
	}

	return next, nil
}

// DeleteExpiredBefore removes up to batchSize unauthorized records whose
// expiry is before cutoff. Postgres DELETE has no LIMIT, so the batch bound
// goes through a keyed subquery.
func (s *PostgresStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time, batchSize int) (int, error) {
	res := s.db.WithContext(ctx).Exec(
		`DELETE FROM device_authorizations WHERE device_code IN (
			SELECT device_code FROM device_authorizations
			WHERE expires_at <= ? AND NOT authorized LIMIT ?)`,
		cutoff, batchSize)
	if res.Error != nil {
		return 0, fmt.Errorf("deleting expired authorizations: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

// DeleteAuthorizedBefore removes up to batchSize authorized records approved
// before cutoff.
func (s *PostgresStore) DeleteAuthorizedBefore(ctx context.Context, cutoff time.Time, batchSize int) (int, error) {
	res := s.db.WithContext(ctx).Exec(
		`DELETE FROM device_authorizations WHERE device_code IN (
			SELECT device_code FROM device_authorizations
			WHERE authorized AND authorized_at <= ? LIMIT ?)`,
		cutoff, batchSize)
	if res.Error != nil {
		return 0, fmt.Errorf("deleting retained authorizations: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

func toRow(auth DeviceAuthorization) (deviceAuthorizationRow, error) {
	scopes, err := json.Marshal(auth.Scopes)
	if err != nil {
		return deviceAuthorizationRow{}, fmt.Errorf("marshaling scopes: %w", err)
	}

	row := deviceAuthorizationRow{
		DeviceCode:   auth.DeviceCode,
		UserCode:     auth.UserCode,
		ID:           auth.ID,
		ClientID:     auth.ClientID,
		Scopes:       datatypes.JSON(scopes),
		UserID:       auth.UserID,
		Authorized:   auth.Authorized,
		Denied:       auth.Denied,
		CreatedAt:    auth.CreatedAt,
		ExpiresAt:    auth.ExpiresAt,
		PollInterval: auth.PollInterval,
		Version:      auth.Version,
	}
	if !auth.AuthorizedAt.IsZero() {
		t := auth.AuthorizedAt
		row.AuthorizedAt = &t
	}
	if !auth.LastPolledAt.IsZero() {
		t := auth.LastPolledAt
		row.LastPolledAt = &t
	}
	return row, nil
}

func fromRow(row deviceAuthorizationRow) (DeviceAuthorization, error) {
	auth := DeviceAuthorization{
		ID:           row.ID,
		DeviceCode:   row.DeviceCode,
		UserCode:     row.UserCode,
		ClientID:     row.ClientID,
		UserID:       row.UserID,
		Authorized:   row.Authorized,
		Denied:       row.Denied,
		CreatedAt:    row.CreatedAt,
		ExpiresAt:    row.ExpiresAt,
		PollInterval: row.PollInterval,
		Version:      row.Version,
	}
	if row.AuthorizedAt != nil {
		auth.AuthorizedAt = *row.AuthorizedAt
	}
	if row.LastPolledAt != nil {
		auth.LastPolledAt = *row.LastPolledAt
	}
	if len(row.Scopes) > 0 {
		if err := json.Unmarshal(row.Scopes, &auth.Scopes); err != nil {
			return DeviceAuthorization{}, fmt.Errorf("unmarshaling scopes: %w", err)
		}
	}
	return auth, nil
}
