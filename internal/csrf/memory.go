package csrf

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements the Store interface in process memory. Suitable for
// single-instance deployments without Redis; tokens do not survive restarts
// and are not shared between instances.
type MemoryStore struct {
	mu     sync.Mutex
	tokens map[string]time.Time // token -> expiry
}

// NewMemoryStore creates an in-memory CSRF token store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]time.Time)}
}

// SaveToken stores a CSRF token with expiration
func (s *MemoryStore) SaveToken(ctx context.Context, token string, expiresIn time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.prune(now)
	s.tokens[token] = now.Add(expiresIn)
	return nil
}

// ConsumeToken removes a token, failing if it was absent or expired
func (s *MemoryStore) ConsumeToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.tokens[token]
	if !ok {
		return ErrInvalidToken
	}
	delete(s.tokens, token)
	if time.Now().After(expiry) {
		return ErrInvalidToken
	}
	return nil
}

// CheckHealth always succeeds for the in-memory store
func (s *MemoryStore) CheckHealth(ctx context.Context) error {
	return nil
}

// prune drops expired tokens; callers hold the lock
func (s *MemoryStore) prune(now time.Time) {
	for token, expiry := range s.tokens {
		if now.After(expiry) {
			delete(s.tokens, token)
		}
	}
}
