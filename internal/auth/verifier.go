// Package auth checks username/password credentials and decides whether a second factor is needed.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/router-for-me/ErrorMonitorBusiness/internal/models"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/security"
	log "github.com/sirupsen/logrus"
)

// ErrAuthenticationFailed is the only failure callers see for bad credentials.
var ErrAuthenticationFailed = errors.New("invalid credentials")

// ErrUserNotFound is returned by identity stores for unknown users.
var ErrUserNotFound = errors.New("user not found")

// Status is the first-stage login outcome.
type Status int

const (
	StatusRejected Status = iota
	StatusAuthenticated
	StatusSecondFactorRequired
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusAuthenticated:
		return "AUTHENTICATED"
	case StatusSecondFactorRequired:
		return "SECOND_FACTOR_REQUIRED"
	default:
		return "REJECTED"
	}
}

// Result is returned by Verify. Identity and User are set unless Status is StatusRejected.
type Result struct {
	Status   Status
	Identity security.Identity
	User     *models.User
}

// IdentityStore is the read side of the user table the verifier needs.
type IdentityStore interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	TouchLastLogin(ctx context.Context, userID uint64, at time.Time) error
}

// Verifier validates credentials against an IdentityStore.
type Verifier struct {
	store             IdentityStore
	twoFactorRequired func() bool
	nowFn             func() time.Time
	touchTimeout      time.Duration
}

// NewVerifier builds a Verifier. twoFactorRequired reports the global 2FA toggle.
func NewVerifier(store IdentityStore, twoFactorRequired func() bool) *Verifier {
	if twoFactorRequired == nil {
		twoFactorRequired = func() bool { return false }
	}
	return &Verifier{
		store:             store,
		twoFactorRequired: twoFactorRequired,
		nowFn:             time.Now,
		touchTimeout:      5 * time.Second,
	}
}

// Verify checks username and password. A non-nil error means the identity store failed;
// credential problems are reported as StatusRejected with ErrAuthenticationFailed semantics.
func (v *Verifier) Verify(ctx context.Context, username, password string) (Result, error) {
	rejected := Result{Status: StatusRejected}
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		security.BurnPasswordCheck(password)
		return rejected, nil
	}

	user, errFind := v.store.FindByUsername(ctx, username)
	if errFind != nil {
		security.BurnPasswordCheck(password)
		if errors.Is(errFind, ErrUserNotFound) {
			return rejected, nil
		}
		return rejected, errFind
	}

	if !user.HasPassword() {
		security.BurnPasswordCheck(password)
		return rejected, nil
	}
	if !security.CheckPassword(*user.Password, password) {
		return rejected, nil
	}
	if !user.Active {
		return rejected, nil
	}
	role, okRole := security.ParseRole(user.Role)
	if !okRole {
		log.WithFields(log.Fields{"user_id": user.ID, "role": user.Role}).Warn("auth: user has unknown role")
		return rejected, nil
	}

	result := Result{
		Status:   StatusAuthenticated,
		Identity: security.Identity{UserID: user.ID, Username: user.Username, Role: role},
		User:     user,
	}
	if user.TwoFactorEnabled || v.twoFactorRequired() {
		result.Status = StatusSecondFactorRequired
		return result, nil
	}
	v.RecordLogin(user.ID)
	return result, nil
}

// RecordLogin stores the login time in the background; failures are only logged.
// Verify calls it for password-only logins. Second-factor logins call it once
// the code has been accepted.
func (v *Verifier) RecordLogin(userID uint64) {
	at := v.nowFn().UTC()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), v.touchTimeout)
		defer cancel()
		if errTouch := v.store.TouchLastLogin(ctx, userID, at); errTouch != nil {
			log.WithError(errTouch).WithField("user_id", userID).Warn("auth: record last login failed")
		}
	}()
}
