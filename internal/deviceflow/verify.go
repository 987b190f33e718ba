package deviceflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/wrale/oauth2-device-authz/internal/validation"
)

// VerifyUserCode looks up a pending record by user-entered code. Format
// validation runs before any store round trip so obviously malformed input
// gets fast feedback. The returned record is still pending: not expired, not
// denied, not authorized.
func (f *Flow) VerifyUserCode(ctx context.Context, userCode string) (DeviceAuthorization, error) {
	if err := validation.ValidateUserCode(userCode); err != nil {
		return DeviceAuthorization{}, NewFlowError(ErrorCodeInvalidRequest, err.Error())
	}

	auth, err := f.store.GetByUserCode(ctx, validation.NormalizeCode(userCode))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return DeviceAuthorization{}, ErrNotFound
		}
		return DeviceAuthorization{}, fmt.Errorf("getting device authorization: %w", err)
	}

	if auth.Expired(f.now()) {
		return DeviceAuthorization{}, ErrExpired
	}
	if auth.Denied {
		return DeviceAuthorization{}, ErrAccessDenied
	}
	if auth.Authorized {
		return DeviceAuthorization{}, ErrAlreadyAuthorized
	}

	return auth, nil
}

// Authorize binds an authenticated principal to the pending record identified
// by userCode and marks it approved. This is the single transition into the
// terminal approved state: it is applied as a conditional write, and a record
// that was already approved fails with ErrAlreadyAuthorized regardless of the
// principal presented.
func (f *Flow) Authorize(ctx context.Context, userCode, userID string) error {
	for attempt := 0; attempt < 2; attempt++ {
		auth, err := f.VerifyUserCode(ctx, userCode)
		if err != nil {
			return err
		}

		auth.Authorized = true
		auth.UserID = userID
		auth.AuthorizedAt = f.now()

		_, err = f.store.Update(ctx, auth)
		if err == nil {
			f.logger.WithFields(map[string]interface{}{
				"authorization_id": auth.ID,
				"client_id":        auth.ClientID,
			}).Info("device authorization approved")
			return nil
		}
		if !errors.Is(err, ErrStoreConflict) {
			return fmt.Errorf("approving device authorization: %w", err)
		}
		// A concurrent writer won; the re-read surfaces the terminal state
	}
	return f.conflictOutcome(ctx, userCode)
}

// Deny marks the pending record identified by userCode as explicitly denied,
// a terminal state distinct from expiry. No principal is recorded. Denying an
// already denied record succeeds; the user's intent is already satisfied.
func (f *Flow) Deny(ctx context.Context, userCode string) error {
	for attempt := 0; attempt < 2; attempt++ {
		auth, err := f.VerifyUserCode(ctx, userCode)
		if errors.Is(err, ErrAccessDenied) {
			return nil
		}
		if err != nil {
			return err
		}

		auth.Denied = true
		auth.UserID = ""

		_, err = f.store.Update(ctx, auth)
		if err == nil {
			f.logger.WithFields(map[string]interface{}{
				"authorization_id": auth.ID,
				"client_id":        auth.ClientID,
			}).Info("device authorization denied")
			return nil
		}
		if !errors.Is(err, ErrStoreConflict) {
			return fmt.Errorf("denying device authorization: %w", err)
		}
	}
	return f.conflictOutcome(ctx, userCode)
}

// conflictOutcome resolves a persistent update conflict into the most
// specific user-facing error the record's current state supports.
func (f *Flow) conflictOutcome(ctx context.Context, userCode string) error {
	auth, err := f.store.GetByUserCode(ctx, validation.NormalizeCode(userCode))
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("resolving update conflict: %w", err)
	}
	switch {
	case auth.Authorized:
		return ErrAlreadyAuthorized
	case auth.Denied:
		return ErrAccessDenied
	default:
		return ErrStoreConflict
	}
}
