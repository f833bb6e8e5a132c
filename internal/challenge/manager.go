// Package challenge issues and verifies the emailed one-time codes used as a second login factor.
package challenge

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/mail"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/models"
	log "github.com/sirupsen/logrus"
)

// Defaults for code lifetime and guessing limits.
const (
	DefaultCodeTTL     = 5 * time.Minute
	DefaultMaxAttempts = 5
	codeDigits         = otp.DigitsSix
	sweepInterval      = time.Minute
	sendTimeout        = 15 * time.Second
)

var (
	// ErrChallengeCreation is returned by Issue when the user does not exist.
	ErrChallengeCreation = errors.New("challenge: cannot create challenge for unknown user")
	// ErrChallengeExpired means no active code exists or it is past its lifetime.
	ErrChallengeExpired = errors.New("verification code expired, request a new one")
	// ErrChallengeMismatch means the submitted code is wrong.
	ErrChallengeMismatch = errors.New("invalid verification code")
	// ErrChallengeRateLimited means too many wrong codes were submitted for the active code.
	ErrChallengeRateLimited = errors.New("too many attempts, request a new code")
)

// Outcome is the result of Verify.
type Outcome int

const (
	OutcomeExpired Outcome = iota
	OutcomeMismatch
	OutcomeRateLimited
	OutcomeAuthenticated
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeAuthenticated:
		return "AUTHENTICATED"
	case OutcomeMismatch:
		return "MISMATCH"
	case OutcomeRateLimited:
		return "RATE_LIMITED"
	default:
		return "EXPIRED"
	}
}

// Err maps a failed outcome to its error. OutcomeAuthenticated returns nil.
func (o Outcome) Err() error {
	switch o {
	case OutcomeAuthenticated:
		return nil
	case OutcomeMismatch:
		return ErrChallengeMismatch
	case OutcomeRateLimited:
		return ErrChallengeRateLimited
	default:
		return ErrChallengeExpired
	}
}

// UserLookup resolves the user a code is issued for.
type UserLookup interface {
	FindByID(ctx context.Context, id uint64) (*models.User, error)
}

// Issued describes a freshly issued code. DeliveryErr is a non-fatal email failure.
type Issued struct {
	Code        string
	Email       string
	ExpiresAt   time.Time
	DeliveryErr error
}

// pendingCode is the single active code for a user.
type pendingCode struct {
	code      string
	createdAt time.Time
	failures  int
	locked    bool
}

// Manager holds at most one active code per user.
type Manager struct {
	users       UserLookup
	sender      mail.Sender
	ttl         time.Duration
	maxAttempts int
	nowFn       func() time.Time
	random      io.Reader

	mu    sync.Mutex
	codes map[uint64]*pendingCode
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock replaces the manager clock.
func WithClock(nowFn func() time.Time) Option {
	return func(m *Manager) {
		if nowFn != nil {
			m.nowFn = nowFn
		}
	}
}

// WithRandom replaces the code entropy source.
func WithRandom(r io.Reader) Option {
	return func(m *Manager) {
		if r != nil {
			m.random = r
		}
	}
}

// NewManager builds a Manager with the default 5-minute lifetime and 5-attempt limit.
func NewManager(users UserLookup, sender mail.Sender, opts ...Option) *Manager {
	m := &Manager{
		users:       users,
		sender:      sender,
		ttl:         DefaultCodeTTL,
		maxAttempts: DefaultMaxAttempts,
		nowFn:       time.Now,
		random:      rand.Reader,
		codes:       make(map[uint64]*pendingCode),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Issue creates a new code for userID, replacing any earlier one, and emails it.
func (m *Manager) Issue(ctx context.Context, userID uint64) (Issued, error) {
	if userID == 0 {
		return Issued{}, ErrChallengeCreation
	}
	user, errFind := m.users.FindByID(ctx, userID)
	if errFind != nil || user == nil {
		if errFind != nil {
			log.WithError(errFind).WithField("user_id", userID).Debug("challenge: user lookup failed")
		}
		return Issued{}, ErrChallengeCreation
	}

	code, errCode := m.generateCode()
	if errCode != nil {
		return Issued{}, errCode
	}
	now := m.nowFn()

	m.mu.Lock()
	m.codes[userID] = &pendingCode{code: code, createdAt: now}
	m.mu.Unlock()

	issued := Issued{Code: code, Email: user.Email, ExpiresAt: now.Add(m.ttl)}
	if m.sender != nil {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		defer cancel()
		subject := "Your verification code"
		body := fmt.Sprintf("Hello %s,\n\nYour verification code is %s.\nIt expires in %d minutes.\n",
			displayName(user), code, int(m.ttl/time.Minute))
		if errSend := m.sender.Send(sendCtx, user.Email, subject, body); errSend != nil {
			log.WithError(errSend).WithField("user_id", userID).Warn("challenge: send verification code failed")
			issued.DeliveryErr = errSend
		}
	}
	return issued, nil
}

// Verify checks code against the active code for userID and consumes it on success.
func (m *Manager) Verify(userID uint64, code string) Outcome {
	code = strings.TrimSpace(code)
	now := m.nowFn()

	m.mu.Lock()
	defer m.mu.Unlock()

	pending, ok := m.codes[userID]
	if !ok {
		return OutcomeExpired
	}
	if now.Sub(pending.createdAt) > m.ttl {
		delete(m.codes, userID)
		return OutcomeExpired
	}
	if pending.locked {
		return OutcomeRateLimited
	}
	if subtle.ConstantTimeCompare([]byte(pending.code), []byte(code)) != 1 {
		pending.failures++
		if pending.failures >= m.maxAttempts {
			pending.locked = true
			pending.code = ""
		}
		return OutcomeMismatch
	}
	delete(m.codes, userID)
	return OutcomeAuthenticated
}

// Pending reports whether userID has an unexpired code or a lock awaiting a new code.
func (m *Manager) Pending(userID uint64) bool {
	now := m.nowFn()
	m.mu.Lock()
	defer m.mu.Unlock()
	pending, ok := m.codes[userID]
	return ok && now.Sub(pending.createdAt) <= m.ttl
}

// Run purges expired codes until ctx is canceled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := m.Sweep(); removed > 0 {
				log.Debugf("challenge: swept %d expired codes", removed)
			}
		}
	}
}

// Sweep removes expired codes and returns how many were dropped.
func (m *Manager) Sweep() int {
	now := m.nowFn()
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for userID, pending := range m.codes {
		if now.Sub(pending.createdAt) > m.ttl {
			delete(m.codes, userID)
			removed++
		}
	}
	return removed
}

// generateCode draws a uniform number below 10^digits and zero-pads it.
func (m *Manager) generateCode() (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(codeDigits.Length())), nil)
	n, errRand := rand.Int(m.random, limit)
	if errRand != nil {
		return "", fmt.Errorf("challenge: generate code: %w", errRand)
	}
	return codeDigits.Format(int32(n.Int64())), nil
}

func displayName(user *models.User) string {
	name := strings.TrimSpace(strings.TrimSpace(user.FirstName) + " " + strings.TrimSpace(user.LastName))
	if name == "" {
		return user.Username
	}
	return name
}
