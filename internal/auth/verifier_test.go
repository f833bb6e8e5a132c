package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/router-for-me/ErrorMonitorBusiness/internal/models"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/security"
)

type fakeStore struct {
	mu      sync.Mutex
	users   map[string]*models.User
	findErr error
	touched chan uint64
}

func newFakeStore(t *testing.T, users ...*models.User) *fakeStore {
	t.Helper()
	store := &fakeStore{users: map[string]*models.User{}, touched: make(chan uint64, 8)}
	for _, u := range users {
		store.users[u.Username] = u
	}
	return store
}

func (s *fakeStore) FindByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	user, ok := s.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *fakeStore) TouchLastLogin(_ context.Context, userID uint64, _ time.Time) error {
	s.touched <- userID
	return errors.New("store offline")
}

func mustUser(t *testing.T, id uint64, username, password, role string, twoFactor bool) *models.User {
	t.Helper()
	hash, err := security.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	return &models.User{
		ID:               id,
		Username:         username,
		Email:            username + "@example.com",
		Password:         &hash,
		Role:             role,
		Active:           true,
		TwoFactorEnabled: twoFactor,
	}
}

func TestVerifyAuthenticatesWithoutSecondFactor(t *testing.T) {
	store := newFakeStore(t, mustUser(t, 1, "bob", "pw-bob", "DEVELOPER", false))
	verifier := NewVerifier(store, nil)

	result, err := verifier.Verify(context.Background(), "bob", "pw-bob")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Status != StatusAuthenticated {
		t.Fatalf("expected AUTHENTICATED, got %s", result.Status)
	}
	if result.Identity.UserID != 1 || result.Identity.Role != security.RoleDeveloper {
		t.Fatalf("unexpected identity %+v", result.Identity)
	}

	select {
	case id := <-store.touched:
		if id != 1 {
			t.Fatalf("expected last login touch for user 1, got %d", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected last login to be recorded")
	}
}

func TestVerifyRequiresSecondFactor(t *testing.T) {
	store := newFakeStore(t,
		mustUser(t, 1, "alice", "pw-alice", "ADMIN", true),
		mustUser(t, 2, "carol", "pw-carol", "VIEWER", false),
	)
	global := false
	verifier := NewVerifier(store, func() bool { return global })

	result, err := verifier.Verify(context.Background(), "alice", "pw-alice")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Status != StatusSecondFactorRequired {
		t.Fatalf("expected SECOND_FACTOR_REQUIRED for per-user flag, got %s", result.Status)
	}

	result, err = verifier.Verify(context.Background(), "carol", "pw-carol")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Status != StatusAuthenticated {
		t.Fatalf("expected AUTHENTICATED with toggle off, got %s", result.Status)
	}

	global = true
	result, err = verifier.Verify(context.Background(), "carol", "pw-carol")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Status != StatusSecondFactorRequired {
		t.Fatalf("expected SECOND_FACTOR_REQUIRED with global toggle, got %s", result.Status)
	}
}

func TestVerifyRejectsUniformly(t *testing.T) {
	inactive := mustUser(t, 3, "dave", "pw-dave", "VIEWER", false)
	inactive.Active = false
	external := &models.User{ID: 4, Username: "erin", Role: "VIEWER", Active: true, AuthProvider: models.AuthProviderGoogle}
	badRole := mustUser(t, 5, "frank", "pw-frank", "ROOT", false)
	store := newFakeStore(t, mustUser(t, 1, "bob", "pw-bob", "VIEWER", false), inactive, external, badRole)
	verifier := NewVerifier(store, nil)

	cases := []struct{ username, password string }{
		{"bob", "wrong"},
		{"nobody", "pw-bob"},
		{"dave", "pw-dave"},
		{"erin", "anything"},
		{"frank", "pw-frank"},
		{"", "pw"},
		{"bob", ""},
	}
	for _, tc := range cases {
		result, err := verifier.Verify(context.Background(), tc.username, tc.password)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tc.username, err)
		}
		if result.Status != StatusRejected {
			t.Fatalf("%s: expected REJECTED, got %s", tc.username, result.Status)
		}
		if result.Identity != (security.Identity{}) || result.User != nil {
			t.Fatalf("%s: rejected result must not carry an identity", tc.username)
		}
	}
}

func TestVerifySurfacesStoreFailure(t *testing.T) {
	store := newFakeStore(t)
	store.findErr = errors.New("connection refused")
	verifier := NewVerifier(store, nil)

	result, err := verifier.Verify(context.Background(), "bob", "pw")
	if err == nil {
		t.Fatalf("expected store error")
	}
	if result.Status != StatusRejected {
		t.Fatalf("expected REJECTED on store failure, got %s", result.Status)
	}
}

func TestVerifyDefersLastLoginUntilSecondFactor(t *testing.T) {
	store := newFakeStore(t, mustUser(t, 7, "gina", "pw-gina", "VIEWER", true))
	verifier := NewVerifier(store, nil)

	result, err := verifier.Verify(context.Background(), "gina", "pw-gina")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Status != StatusSecondFactorRequired {
		t.Fatalf("expected SECOND_FACTOR_REQUIRED, got %s", result.Status)
	}
	select {
	case id := <-store.touched:
		t.Fatalf("last login recorded for user %d before the code was verified", id)
	case <-time.After(100 * time.Millisecond):
	}

	verifier.RecordLogin(result.Identity.UserID)
	select {
	case id := <-store.touched:
		if id != 7 {
			t.Fatalf("expected last login touch for user 7, got %d", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected last login to be recorded")
	}
}
