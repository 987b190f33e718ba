package csrf

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const tokenPrefix = "csrf:"

// RedisStore implements the Store interface using Redis
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis-backed CSRF token store
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// SaveToken stores a CSRF token with expiration
func (s *RedisStore) SaveToken(ctx context.Context, token string, expiresIn time.Duration) error {
	if token == "" {
		return errors.New("empty token")
	}

	key := tokenPrefix + token
	if err := s.client.Set(ctx, key, "1", expiresIn).Err(); err != nil {
		return fmt.Errorf("storing token: %w", err)
	}

	return nil
}

// ConsumeToken removes a token, failing if it was absent or expired
func (s *RedisStore) ConsumeToken(ctx context.Context, token string) error {
	if token == "" {
		return ErrInvalidToken
	}

	deleted, err := s.client.Del(ctx, tokenPrefix+token).Result()
	if err != nil {
		return fmt.Errorf("consuming token: %w", err)
	}
	if deleted == 0 {
		return ErrInvalidToken
	}

	return nil
}

// CheckHealth verifies Redis connectivity
func (s *RedisStore) CheckHealth(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}
