package deviceflow

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// mockStore implements Store for testing, honoring the same conditional
// write contract as the real backends.
type mockStore struct {
	mu          sync.Mutex
	records     map[string]DeviceAuthorization // device code -> record
	userCodes   map[string]string              // user code -> device code
	healthy      bool
	failCreate   error // returned by every Create when set
	dupRemaining int   // number of Creates to fail with ErrDuplicateCode
	conflictTab  int   // number of Updates to fail with ErrStoreConflict
	createCalls  int
}

func newMockStore() *mockStore {
	return &mockStore{
		records:   make(map[string]DeviceAuthorization),
		userCodes: make(map[string]string),
		healthy:   true,
	}
}

func (m *mockStore) Create(ctx context.Context, auth DeviceAuthorization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.failCreate != nil {
		return m.failCreate
	}
	if m.dupRemaining > 0 {
		m.dupRemaining--
		return ErrDuplicateCode
	}
	if _, exists := m.records[auth.DeviceCode]; exists {
		return ErrDuplicateCode
	}
	if _, exists := m.userCodes[auth.UserCode]; exists {
		return ErrDuplicateCode
	}
	m.records[auth.DeviceCode] = auth
	m.userCodes[auth.UserCode] = auth.DeviceCode
	return nil
}

func (m *mockStore) GetByDeviceCode(ctx context.Context, deviceCode string) (DeviceAuthorization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	auth, exists := m.records[deviceCode]
	if !exists {
		return DeviceAuthorization{}, ErrNotFound
	}
	return auth, nil
}

func (m *mockStore) GetByUserCode(ctx context.Context, userCode string) (DeviceAuthorization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deviceCode, exists := m.userCodes[userCode]
	if !exists {
		return DeviceAuthorization{}, ErrNotFound
	}
	return m.records[deviceCode], nil
}

func (m *mockStore) Update(ctx context.Context, auth DeviceAuthorization) (DeviceAuthorization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflictTab > 0 {
		m.conflictTab--
		return DeviceAuthorization{}, ErrStoreConflict
	}
	current, exists := m.records[auth.DeviceCode]
	if !exists {
		return DeviceAuthorization{}, ErrNotFound
	}
	if current.Version != auth.Version {
		return DeviceAuthorization{}, ErrStoreConflict
	}
	auth.Version++
	m.records[auth.DeviceCode] = auth
	return auth, nil
}

func (m *mockStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time, batchSize int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for deviceCode, auth := range m.records {
		if deleted >= batchSize {
			break
		}
		if !auth.Authorized && !cutoff.Before(auth.ExpiresAt) {
			delete(m.records, deviceCode)
			delete(m.userCodes, auth.UserCode)
			deleted++
		}
	}
	return deleted, nil
}

func (m *mockStore) DeleteAuthorizedBefore(ctx context.Context, cutoff time.Time, batchSize int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for deviceCode, auth := range m.records {
		if deleted >= batchSize {
			break
		}
		if auth.Authorized && !cutoff.Before(auth.AuthorizedAt) {
			delete(m.records, deviceCode)
			delete(m.userCodes, auth.UserCode)
			deleted++
		}
	}
	return deleted, nil
}

func (m *mockStore) CheckHealth(ctx context.Context) error {
	if !m.healthy {
		return errors.New("store unhealthy")
	}
	return nil
}

func newTestFlow(store Store, opts ...Option) *Flow {
	return New(store, "https://auth.example.com", opts...)
}

func TestRequestAuthorization(t *testing.T) {
	tests := []struct {
		name       string
		clientID   string
		scope      string
		wantScopes []string
	}{
		{
			name:     "without scope",
			clientID: "tv-app",
		},
		{
			name:       "with scope",
			clientID:   "tv-app",
			scope:      "read write",
			wantScopes: []string{"read", "write"},
		},
		{
			name:       "duplicate scopes collapse",
			clientID:   "tv-app",
			scope:      "read write read",
			wantScopes: []string{"read", "write"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockStore()
			flow := newTestFlow(store)

			grant, err := flow.RequestAuthorization(context.Background(), tt.clientID, tt.scope)
			if err != nil {
				t.Fatalf("RequestAuthorization() error = %v", err)
			}

			if grant.DeviceCode == "" {
				t.Error("expected non-empty device code")
			}
			if !strings.Contains(grant.UserCode, "-") {
				t.Errorf("user code %q should be in display format", grant.UserCode)
			}
			if got := len(strings.ReplaceAll(grant.UserCode, "-", "")); got != 8 {
				t.Errorf("user code length = %d, want 8", got)
			}
			if grant.Interval != 5 {
				t.Errorf("interval = %d, want 5", grant.Interval)
			}
			if grant.ExpiresIn != int(DefaultCodeLifetime.Seconds()) {
				t.Errorf("expires_in = %d, want %d", grant.ExpiresIn, int(DefaultCodeLifetime.Seconds()))
			}
			if !strings.HasSuffix(grant.VerificationURI, "/device") {
				t.Errorf("verification URI = %q, want /device suffix", grant.VerificationURI)
			}
			if !strings.Contains(grant.VerificationURIComplete, "code=") {
				t.Errorf("complete URI = %q, want embedded code", grant.VerificationURIComplete)
			}

			stored, err := store.GetByDeviceCode(context.Background(), grant.DeviceCode)
			if err != nil {
				t.Fatalf("stored record not found: %v", err)
			}
			if stored.ClientID != tt.clientID {
				t.Errorf("client_id = %q, want %q", stored.ClientID, tt.clientID)
			}
			if diff := cmp.Diff(tt.wantScopes, stored.Scopes); diff != "" {
				t.Errorf("scopes mismatch (-want +got):\n%s", diff)
			}
			if stored.Authorized || stored.Denied || stored.UserID != "" {
				t.Error("new record must be pending with no principal")
			}
			if !stored.ExpiresAt.After(stored.CreatedAt) {
				t.Error("expires_at must be after created_at")
			}
		})
	}
}

func TestRequestAuthorizationGenerationExhausted(t *testing.T) {
	store := newMockStore()
	store.failCreate = ErrDuplicateCode

	flow := newTestFlow(store, WithMaxGenerationAttempts(10))

	_, err := flow.RequestAuthorization(context.Background(), "tv-app", "")
	if !errors.Is(err, ErrGenerationExhausted) {
		t.Fatalf("error = %v, want ErrGenerationExhausted", err)
	}
	if store.createCalls != 10 {
		t.Errorf("create attempts = %d, want exactly 10", store.createCalls)
	}
}

func TestRequestAuthorizationRetriesOnCollision(t *testing.T) {
	store := newMockStore()
	store.dupRemaining = 2

	flow := newTestFlow(store)

	grant, err := flow.RequestAuthorization(context.Background(), "tv-app", "")
	if err != nil {
		t.Fatalf("RequestAuthorization() error = %v", err)
	}
	if grant.DeviceCode == "" {
		t.Fatal("expected device code after retries")
	}
	if store.createCalls != 3 {
		t.Errorf("create attempts = %d, want 3", store.createCalls)
	}
}

func issueForTest(t *testing.T, flow *Flow, store *mockStore, clientID, scope string) DeviceAuthorization {
	t.Helper()
	grant, err := flow.RequestAuthorization(context.Background(), clientID, scope)
	if err != nil {
		t.Fatalf("issuing authorization: %v", err)
	}
	auth, err := store.GetByDeviceCode(context.Background(), grant.DeviceCode)
	if err != nil {
		t.Fatalf("reading back record: %v", err)
	}
	return auth
}

func TestPollStates(t *testing.T) {
	ctx := context.Background()

	t.Run("fresh code is pending", func(t *testing.T) {
		store := newMockStore()
		flow := newTestFlow(store)
		auth := issueForTest(t, flow, store, "tv-app", "")

		result, err := flow.Poll(ctx, auth.DeviceCode)
		if err != nil {
			t.Fatalf("Poll() error = %v", err)
		}
		if result.State != PollStatePending {
			t.Errorf("state = %q, want %q", result.State, PollStatePending)
		}
		if result.Interval != 5 {
			t.Errorf("interval = %d, want 5", result.Interval)
		}

		stored, _ := store.GetByDeviceCode(ctx, auth.DeviceCode)
		if stored.LastPolledAt.IsZero() {
			t.Error("poll must record last_polled_at")
		}
	})

	t.Run("premature poll slows down and penalizes", func(t *testing.T) {
		store := newMockStore()
		flow := newTestFlow(store)
		auth := issueForTest(t, flow, store, "tv-app", "")

		if _, err := flow.Poll(ctx, auth.DeviceCode); err != nil {
			t.Fatalf("first poll: %v", err)
		}
		result, err := flow.Poll(ctx, auth.DeviceCode)
		if err != nil {
			t.Fatalf("second poll: %v", err)
		}
		if result.State != PollStateSlowDown {
			t.Errorf("state = %q, want %q", result.State, PollStateSlowDown)
		}
		if result.Interval != 10 {
			t.Errorf("interval = %d, want 10 after penalty", result.Interval)
		}

		stored, _ := store.GetByDeviceCode(ctx, auth.DeviceCode)
		if stored.PollInterval != 10 {
			t.Errorf("persisted interval = %d, want 10", stored.PollInterval)
		}
	})

	t.Run("poll after interval is pending again", func(t *testing.T) {
		store := newMockStore()
		flow := newTestFlow(store)
		auth := issueForTest(t, flow, store, "tv-app", "")

		if _, err := flow.Poll(ctx, auth.DeviceCode); err != nil {
			t.Fatalf("first poll: %v", err)
		}

		// Advance past the interval
		flow.now = func() time.Time { return time.Now().Add(6 * time.Second) }
		result, err := flow.Poll(ctx, auth.DeviceCode)
		if err != nil {
			t.Fatalf("second poll: %v", err)
		}
		if result.State != PollStatePending {
			t.Errorf("state = %q, want %q", result.State, PollStatePending)
		}
	})

	t.Run("expired code", func(t *testing.T) {
		store := newMockStore()
		flow := newTestFlow(store)
		auth := issueForTest(t, flow, store, "tv-app", "")

		flow.now = func() time.Time { return auth.ExpiresAt.Add(time.Second) }
		result, err := flow.Poll(ctx, auth.DeviceCode)
		if err != nil {
			t.Fatalf("Poll() error = %v", err)
		}
		if result.State != PollStateExpired {
			t.Errorf("state = %q, want %q", result.State, PollStateExpired)
		}
	})

	t.Run("unknown code reports expired", func(t *testing.T) {
		store := newMockStore()
		flow := newTestFlow(store)

		result, err := flow.Poll(ctx, "no-such-code")
		if err != nil {
			t.Fatalf("Poll() error = %v", err)
		}
		if result.State != PollStateExpired {
			t.Errorf("state = %q, want %q; not-found must be indistinguishable from expired", result.State, PollStateExpired)
		}
	})

	t.Run("denied code", func(t *testing.T) {
		store := newMockStore()
		flow := newTestFlow(store)
		auth := issueForTest(t, flow, store, "tv-app", "")

		if err := flow.Deny(ctx, auth.UserCode); err != nil {
			t.Fatalf("Deny() error = %v", err)
		}
		result, err := flow.Poll(ctx, auth.DeviceCode)
		if err != nil {
			t.Fatalf("Poll() error = %v", err)
		}
		if result.State != PollStateDenied {
			t.Errorf("state = %q, want %q", result.State, PollStateDenied)
		}
	})

	t.Run("authorized code carries the record", func(t *testing.T) {
		store := newMockStore()
		flow := newTestFlow(store)
		auth := issueForTest(t, flow, store, "tv-app", "read write")

		if err := flow.Authorize(ctx, auth.UserCode, "user-42"); err != nil {
			t.Fatalf("Authorize() error = %v", err)
		}
		result, err := flow.Poll(ctx, auth.DeviceCode)
		if err != nil {
			t.Fatalf("Poll() error = %v", err)
		}
		if result.State != PollStateAuthorized {
			t.Fatalf("state = %q, want %q", result.State, PollStateAuthorized)
		}
		if result.Authorization.UserID != "user-42" {
			t.Errorf("user_id = %q, want user-42", result.Authorization.UserID)
		}
		if diff := cmp.Diff([]string{"read", "write"}, result.Authorization.Scopes); diff != "" {
			t.Errorf("scopes mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("short lifetime expires", func(t *testing.T) {
		store := newMockStore()
		flow := newTestFlow(store, WithCodeLifetime(time.Second))
		auth := issueForTest(t, flow, store, "tv-app", "")

		flow.now = func() time.Time { return time.Now().Add(2 * time.Second) }
		result, err := flow.Poll(ctx, auth.DeviceCode)
		if err != nil {
			t.Fatalf("Poll() error = %v", err)
		}
		if result.State != PollStateExpired {
			t.Errorf("state = %q, want %q", result.State, PollStateExpired)
		}
	})
}

func TestAuthorize(t *testing.T) {
	ctx := context.Background()

	t.Run("success binds principal once", func(t *testing.T) {
		store := newMockStore()
		flow := newTestFlow(store)
		auth := issueForTest(t, flow, store, "tv-app", "")

		if err := flow.Authorize(ctx, auth.UserCode, "user-1"); err != nil {
			t.Fatalf("Authorize() error = %v", err)
		}

		stored, _ := store.GetByDeviceCode(ctx, auth.DeviceCode)
		if !stored.Authorized || stored.UserID != "user-1" {
			t.Errorf("record = %+v, want authorized by user-1", stored)
		}
		if stored.AuthorizedAt.IsZero() {
			t.Error("authorized_at must be set")
		}

		// Re-binding to any principal must fail
		err := flow.Authorize(ctx, auth.UserCode, "user-2")
		if !errors.Is(err, ErrAlreadyAuthorized) {
			t.Errorf("second Authorize error = %v, want ErrAlreadyAuthorized", err)
		}
		stored, _ = store.GetByDeviceCode(ctx, auth.DeviceCode)
		if stored.UserID != "user-1" {
			t.Errorf("user_id = %q, want user-1 preserved", stored.UserID)
		}
	})

	t.Run("display format accepted", func(t *testing.T) {
		store := newMockStore()
		flow := newTestFlow(store)
		auth := issueForTest(t, flow, store, "tv-app", "")

		display := auth.UserCode[:4] + "-" + auth.UserCode[4:]
		if err := flow.Authorize(ctx, strings.ToLower(display), "user-1"); err != nil {
			t.Fatalf("Authorize(%q) error = %v", display, err)
		}
	})

	t.Run("unknown code", func(t *testing.T) {
		store := newMockStore()
		flow := newTestFlow(store)

		err := flow.Authorize(ctx, "BCDFGHJK", "user-1")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})

	t.Run("expired code", func(t *testing.T) {
		store := newMockStore()
		flow := newTestFlow(store)
		auth := issueForTest(t, flow, store, "tv-app", "")

		flow.now = func() time.Time { return auth.ExpiresAt.Add(time.Second) }
		err := flow.Authorize(ctx, auth.UserCode, "user-1")
		if !errors.Is(err, ErrExpired) {
			t.Errorf("error = %v, want ErrExpired", err)
		}
	})

	t.Run("denied code", func(t *testing.T) {
		store := newMockStore()
		flow := newTestFlow(store)
		auth := issueForTest(t, flow, store, "tv-app", "")

		if err := flow.Deny(ctx, auth.UserCode); err != nil {
			t.Fatalf("Deny() error = %v", err)
		}
		err := flow.Authorize(ctx, auth.UserCode, "user-1")
		if !errors.Is(err, ErrAccessDenied) {
			t.Errorf("error = %v, want ErrAccessDenied", err)
		}
	})

	t.Run("conflict retries then surfaces terminal state", func(t *testing.T) {
		store := newMockStore()
		flow := newTestFlow(store)
		auth := issueForTest(t, flow, store, "tv-app", "")

		// First update loses the race; the retry succeeds
		store.conflictTab = 1
		if err := flow.Authorize(ctx, auth.UserCode, "user-1"); err != nil {
			t.Fatalf("Authorize() with one conflict error = %v", err)
		}

		stored, _ := store.GetByDeviceCode(ctx, auth.DeviceCode)
		if !stored.Authorized {
			t.Error("record must be authorized after retry")
		}
	})
}

func TestDeny(t *testing.T) {
	ctx := context.Background()

	t.Run("marks record denied without principal", func(t *testing.T) {
		store := newMockStore()
		flow := newTestFlow(store)
		auth := issueForTest(t, flow, store, "tv-app", "")

		if err := flow.Deny(ctx, auth.UserCode); err != nil {
			t.Fatalf("Deny() error = %v", err)
		}

		stored, _ := store.GetByDeviceCode(ctx, auth.DeviceCode)
		if !stored.Denied {
			t.Error("record must be denied")
		}
		if stored.Authorized || stored.UserID != "" {
			t.Error("denied record must carry no principal")
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		store := newMockStore()
		flow := newTestFlow(store)
		auth := issueForTest(t, flow, store, "tv-app", "")

		if err := flow.Deny(ctx, auth.UserCode); err != nil {
			t.Fatalf("first Deny() error = %v", err)
		}
		if err := flow.Deny(ctx, auth.UserCode); err != nil {
			t.Errorf("second Deny() error = %v, want nil", err)
		}
	})

	t.Run("authorized record cannot be denied", func(t *testing.T) {
		store := newMockStore()
		flow := newTestFlow(store)
		auth := issueForTest(t, flow, store, "tv-app", "")

		if err := flow.Authorize(ctx, auth.UserCode, "user-1"); err != nil {
			t.Fatalf("Authorize() error = %v", err)
		}
		err := flow.Deny(ctx, auth.UserCode)
		if !errors.Is(err, ErrAlreadyAuthorized) {
			t.Errorf("error = %v, want ErrAlreadyAuthorized", err)
		}
	})
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()

	t.Run("removes expired keeps live", func(t *testing.T) {
		store := newMockStore()
		flow := newTestFlow(store, WithCodeLifetime(time.Minute))

		base := time.Now()
		flow.now = func() time.Time { return base }
		stale := issueForTest(t, flow, store, "tv-app", "")

		flow.now = func() time.Time { return base.Add(2 * time.Minute) }
		live := issueForTest(t, flow, store, "tv-app", "")

		stats, err := flow.Cleanup(ctx)
		if err != nil {
			t.Fatalf("Cleanup() error = %v", err)
		}
		if stats.Expired != 1 {
			t.Fatalf("expired deleted = %d, want 1", stats.Expired)
		}

		if _, err := store.GetByDeviceCode(ctx, stale.DeviceCode); !errors.Is(err, ErrNotFound) {
			t.Errorf("expired record should be gone, err = %v", err)
		}
		if _, err := store.GetByDeviceCode(ctx, live.DeviceCode); err != nil {
			t.Errorf("live record should remain, err = %v", err)
		}
	})

	t.Run("retains authorized until retention passes", func(t *testing.T) {
		store := newMockStore()
		flow := newTestFlow(store, WithAuthorizedRetention(time.Hour))
		auth := issueForTest(t, flow, store, "tv-app", "")

		if err := flow.Authorize(ctx, auth.UserCode, "user-1"); err != nil {
			t.Fatalf("Authorize() error = %v", err)
		}

		// Past expiry but inside retention: authorized record survives
		flow.now = func() time.Time { return auth.ExpiresAt.Add(time.Minute) }
		stats, err := flow.Cleanup(ctx)
		if err != nil {
			t.Fatalf("Cleanup() error = %v", err)
		}
		if stats.Expired != 0 || stats.RetainedAuthorized != 0 {
			t.Fatalf("stats = %+v, want nothing deleted", stats)
		}

		// Past retention: it goes
		flow.now = func() time.Time { return auth.ExpiresAt.Add(2 * time.Hour) }
		stats, err = flow.Cleanup(ctx)
		if err != nil {
			t.Fatalf("Cleanup() error = %v", err)
		}
		if stats.RetainedAuthorized != 1 {
			t.Errorf("retained authorized deleted = %d, want 1", stats.RetainedAuthorized)
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		store := newMockStore()
		flow := newTestFlow(store)
		auth := issueForTest(t, flow, store, "tv-app", "")

		flow.now = func() time.Time { return auth.ExpiresAt.Add(time.Second) }
		first, err := flow.Cleanup(ctx)
		if err != nil {
			t.Fatalf("Cleanup() error = %v", err)
		}
		second, err := flow.Cleanup(ctx)
		if err != nil {
			t.Fatalf("Cleanup() error = %v", err)
		}
		if first.Expired != 1 || second.Expired != 0 {
			t.Errorf("counts = %d then %d, want 1 then 0", first.Expired, second.Expired)
		}
	})
}

func TestEndToEndApproval(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	flow := newTestFlow(store)

	grant, err := flow.RequestAuthorization(ctx, "c1", "read write")
	if err != nil {
		t.Fatalf("RequestAuthorization() error = %v", err)
	}

	// First poll: pending
	result, err := flow.Poll(ctx, grant.DeviceCode)
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if result.State != PollStatePending {
		t.Fatalf("state = %q, want pending", result.State)
	}

	// User approves with the displayed code
	if err := flow.Authorize(ctx, grant.UserCode, "user-1"); err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}

	// Poll after the interval: authorized with the bound principal
	flow.now = func() time.Time { return time.Now().Add(6 * time.Second) }
	result, err = flow.Poll(ctx, grant.DeviceCode)
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if result.State != PollStateAuthorized {
		t.Fatalf("state = %q, want authorized", result.State)
	}

	got := result.Authorization
	if got.UserID != "user-1" || got.ClientID != "c1" {
		t.Errorf("authorization = %+v, want user-1/c1", got)
	}
	scopes := append([]string(nil), got.Scopes...)
	sort.Strings(scopes)
	if diff := cmp.Diff([]string{"read", "write"}, scopes); diff != "" {
		t.Errorf("scopes mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckHealth(t *testing.T) {
	store := newMockStore()
	flow := newTestFlow(store)

	if err := flow.CheckHealth(context.Background()); err != nil {
		t.Errorf("CheckHealth() error = %v", err)
	}

	store.healthy = false
	if err := flow.CheckHealth(context.Background()); err == nil {
		t.Error("CheckHealth() should fail when store is down")
	}
}
