package deviceflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	devicePrefix       = "device:"
	userPrefix         = "user:"
	expiryIndexKey     = "deviceauth:expiries"
	authorizedIndexKey = "deviceauth:authorized"

	// ttlGrace keeps keys alive past their logical boundary so cleanup, not
	// key expiry, is what removes records and counts them.
	ttlGrace = time.Hour
)

// RedisStore implements the Store interface using Redis. Record payloads live
// under device: keys, user: keys map normalized user codes to device codes,
// and two sorted sets index records by expiry and authorization time for
// batched cleanup.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
}

// NewRedisStore creates a Redis-backed store. retention mirrors the flow's
// authorized-record retention and sizes the TTL backstop on approved records.
func NewRedisStore(client *redis.Client, retention time.Duration) *RedisStore {
	return &RedisStore{client: client, retention: retention}
}

// CheckHealth verifies Redis connectivity
func (s *RedisStore) CheckHealth(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// recordTTL returns the TTL backstop for a record's keys. Cleanup performs
// the precise deletion; the TTL only bounds storage if cleanup never runs.
func (s *RedisStore) recordTTL(auth DeviceAuthorization) time.Duration {
	boundary := auth.ExpiresAt
	if auth.Authorized {
		boundary = auth.AuthorizedAt.Add(s.retention)
	}
	return time.Until(boundary) + ttlGrace
}

// Create stores a new record. SetNX on both the device and user keys is the
// authoritative uniqueness check; a collision on either reports
// ErrDuplicateCode so the caller's generation loop can retry.
func (s *RedisStore) Create(ctx context.Context, auth DeviceAuthorization) error {
	ttl := s.recordTTL(auth)
	if ttl <= 0 {
		return errors.New("record has already expired")
	}

	data, err := json.Marshal(auth)
	if err != nil {
		return fmt.Errorf("marshaling device authorization: %w", err)
	}

	deviceKey := devicePrefix + auth.DeviceCode
	ok, err := s.client.SetNX(ctx, deviceKey, data, ttl).Result()
	if err != nil {
		return fmt.Errorf("storing device code: %w", err)
	}
	if !ok {
		return ErrDuplicateCode
	}

	userKey := userPrefix + auth.UserCode
	ok, err = s.client.SetNX(ctx, userKey, auth.DeviceCode, ttl).Result()
	if err != nil || !ok {
		// Roll back the device key so the half-written record cannot match
		s.client.Del(ctx, deviceKey)
		if err != nil {
			return fmt.Errorf("storing user code: %w", err)
		}
		return ErrDuplicateCode
	}

	err = s.client.ZAdd(ctx, expiryIndexKey, redis.Z{
		Score:  float64(auth.ExpiresAt.Unix()),
		Member: auth.DeviceCode,
	}).Err()
	if err != nil {
		return fmt.Errorf("indexing device authorization: %w", err)
	}

	return nil
}

// GetByDeviceCode retrieves a record by device code
func (s *RedisStore) GetByDeviceCode(ctx context.Context, deviceCode string) (DeviceAuthorization, error) {
	data, err := s.client.Get(ctx, devicePrefix+deviceCode).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return DeviceAuthorization{}, ErrNotFound
		}
		return DeviceAuthorization{}, fmt.Errorf("getting device authorization: %w", err)
	}

	var auth DeviceAuthorization
	if err := json.Unmarshal(data, &auth); err != nil {
		return DeviceAuthorization{}, fmt.Errorf("unmarshaling device authorization: %w", err)
	}

	return auth, nil
}

// GetByUserCode retrieves a record by its normalized user code
func (s *RedisStore) GetByUserCode(ctx context.Context, userCode string) (DeviceAuthorization, error) {
	deviceCode, err := s.client.Get(ctx, userPrefix+userCode).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return DeviceAuthorization{}, ErrNotFound
		}
		return DeviceAuthorization{}, fmt.Errorf("getting user code reference: %w", err)
	}

	return s.GetByDeviceCode(ctx, deviceCode)
}

// Update applies a conditional write: the stored record must still carry
// auth.Version. Implemented as an optimistic WATCH transaction; a concurrent
// writer aborts it and the caller sees ErrStoreConflict.
func (s *RedisStore) Update(ctx context.Context, auth DeviceAuthorization) (DeviceAuthorization, error) {
	deviceKey := devicePrefix + auth.DeviceCode

	next := auth
	next.Version++
	data, err := json.Marshal(next)
	if err != nil {
		return DeviceAuthorization{}, fmt.Errorf("marshaling device authorization: %w", err)
	}

	txf := func(tx *redis.Tx) error {
		stored, err := tx.Get(ctx, deviceKey).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("reading current record: %w", err)
		}

		var current DeviceAuthorization
		if err := json.Unmarshal(stored, &current); err != nil {
			return fmt.Errorf("unmarshaling current record: %w", err)
		}
		if current.Version != auth.Version {
			return ErrStoreConflict
		}

		ttl := s.recordTTL(next)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, deviceKey, data, ttl)
			pipe.Expire(ctx, userPrefix+next.UserCode, ttl)
			if next.Authorized && !current.Authorized {
				// Approved records move to the retention index
				pipe.ZRem(ctx, expiryIndexKey, next.DeviceCode)
				pipe.ZAdd(ctx, authorizedIndexKey, redis.Z{
					Score:  float64(next.AuthorizedAt.Unix()),
					Member: next.DeviceCode,
				})
			}
			return nil
		})
		return err
	}

	err = s.client.Watch(ctx, txf, deviceKey)
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return DeviceAuthorization{}, ErrStoreConflict
		}
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrStoreConflict) {
			return DeviceAuthorization{}, err
		}
		return DeviceAuthorization{}, fmt.Errorf("updating device authorization: %w", err)
	}

	return next, nil
}

// DeleteExpiredBefore removes up to batchSize unauthorized records expired
// before cutoff, walking the expiry index. Records the TTL backstop already
// removed still count once: deleting their index entry is what retires them.
func (s *RedisStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time, batchSize int) (int, error) {
	return s.sweepIndex(ctx, expiryIndexKey, cutoff, batchSize)
}

// DeleteAuthorizedBefore removes up to batchSize authorized records approved
// before cutoff, walking the retention index.
func (s *RedisStore) DeleteAuthorizedBefore(ctx context.Context, cutoff time.Time, batchSize int) (int, error) {
	return s.sweepIndex(ctx, authorizedIndexKey, cutoff, batchSize)
}

func (s *RedisStore) sweepIndex(ctx context.Context, indexKey string, cutoff time.Time, batchSize int) (int, error) {
	codes, err := s.client.ZRangeByScore(ctx, indexKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(cutoff.Unix(), 10),
		Count: int64(batchSize),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scanning %s index: %w", indexKey, err)
	}

	deleted := 0
	for _, deviceCode := range codes {
		auth, err := s.GetByDeviceCode(ctx, deviceCode)

		pipe := s.client.TxPipeline()
		pipe.Del(ctx, devicePrefix+deviceCode)
		if err == nil {
			pipe.Del(ctx, userPrefix+auth.UserCode)
		}
		pipe.ZRem(ctx, indexKey, deviceCode)
		if _, err := pipe.Exec(ctx); err != nil {
			return deleted, fmt.Errorf("deleting device authorization: %w", err)
		}
		deleted++
	}

	return deleted, nil
}
