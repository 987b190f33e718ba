package deviceflow

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Poll validates a token endpoint poll for the given device code per RFC 8628
// sections 3.4 and 3.5 and returns the resulting state.
//
// A device code that matches no record reports the expired state: clients
// must not be able to distinguish a code that never existed from one that
// expired and was purged.
func (f *Flow) Poll(ctx context.Context, deviceCode string) (PollResult, error) {
	auth, err := f.store.GetByDeviceCode(ctx, deviceCode)
	if errors.Is(err, ErrNotFound) {
		return PollResult{State: PollStateExpired}, nil
	}
	if err != nil {
		return PollResult{}, fmt.Errorf("getting device authorization: %w", err)
	}

	now := f.now()
	if auth.Expired(now) {
		return PollResult{State: PollStateExpired}, nil
	}

	if auth.Denied {
		return PollResult{State: PollStateDenied}, nil
	}

	// Premature poll: report slow_down and persist an increased interval so
	// the penalty sticks across service instances.
	interval := time.Duration(auth.PollInterval) * time.Second
	if !auth.LastPolledAt.IsZero() && now.Before(auth.LastPolledAt.Add(interval)) {
		auth, err = f.recordPoll(ctx, auth, now, true)
		if err != nil {
			return PollResult{}, err
		}
		f.logger.WithFields(map[string]interface{}{
			"authorization_id": auth.ID,
			"client_id":        auth.ClientID,
			"interval":         auth.PollInterval,
		}).Warn("premature poll, interval increased")
		return PollResult{State: PollStateSlowDown, Interval: auth.PollInterval}, nil
	}

	// Every non-slow_down poll re-arms the interval check
	auth, err = f.recordPoll(ctx, auth, now, false)
	if err != nil {
		return PollResult{}, err
	}

	if auth.Authorized {
		return PollResult{State: PollStateAuthorized, Authorization: auth}, nil
	}

	return PollResult{State: PollStatePending, Interval: auth.PollInterval}, nil
}

// recordPoll persists the poll timestamp, and the slow_down penalty when
// applicable, as a conditional write. A conflicting concurrent poller is
// tolerated after one retry: its timestamp is as current as ours.
func (f *Flow) recordPoll(ctx context.Context, auth DeviceAuthorization, now time.Time, penalty bool) (DeviceAuthorization, error) {
	for attempt := 0; attempt < 2; attempt++ {
		next := auth
		next.LastPolledAt = now
		if penalty {
			next.PollInterval += int(SlowDownIncrement.Seconds())
		}

		updated, err := f.store.Update(ctx, next)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, ErrStoreConflict) {
			return auth, fmt.Errorf("recording poll: %w", err)
		}

		fresh, err := f.store.GetByDeviceCode(ctx, auth.DeviceCode)
		if err != nil {
			return auth, fmt.Errorf("re-reading after poll conflict: %w", err)
		}
		auth = fresh
	}
	return auth, nil
}
