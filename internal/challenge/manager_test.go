package challenge

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/router-for-me/ErrorMonitorBusiness/internal/models"
)

type fakeUsers map[uint64]*models.User

func (f fakeUsers) FindByID(_ context.Context, id uint64) (*models.User, error) {
	user, ok := f[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return user, nil
}

type recordingSender struct {
	mu    sync.Mutex
	err   error
	sent  []string
	to    []string
	calls int
}

func (s *recordingSender) Send(_ context.Context, to, _ string, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.to = append(s.to, to)
	s.sent = append(s.sent, body)
	return s.err
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var sixDigits = regexp.MustCompile(`^[0-9]{6}$`)

func newTestManager(t *testing.T, opts ...Option) (*Manager, *recordingSender, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	sender := &recordingSender{}
	users := fakeUsers{
		1: {ID: 1, Username: "alice", Email: "alice@example.com"},
		2: {ID: 2, Username: "bob", Email: "bob@example.com"},
	}
	all := append([]Option{WithClock(clock.Now)}, opts...)
	return NewManager(users, sender, all...), sender, clock
}

func TestAliceScenario(t *testing.T) {
	random := bytes.NewReader([]byte{0x07, 0x62, 0x50})
	manager, sender, clock := newTestManager(t, WithRandom(random))

	issued, err := manager.Issue(context.Background(), 1)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if issued.Code != "483920" {
		t.Fatalf("expected code 483920, got %q", issued.Code)
	}
	if sender.calls != 1 || sender.to[0] != "alice@example.com" || !strings.Contains(sender.sent[0], "483920") {
		t.Fatalf("expected code emailed to alice, got %+v", sender)
	}

	clock.Advance(4 * time.Minute)
	if outcome := manager.Verify(1, "483920"); outcome != OutcomeAuthenticated {
		t.Fatalf("expected AUTHENTICATED, got %s", outcome)
	}
	if outcome := manager.Verify(1, "483920"); outcome == OutcomeAuthenticated {
		t.Fatalf("code must not be accepted twice")
	}
}

func TestIssueGeneratesSixDigitCodes(t *testing.T) {
	manager, _, _ := newTestManager(t)
	for i := 0; i < 50; i++ {
		issued, err := manager.Issue(context.Background(), 2)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if !sixDigits.MatchString(issued.Code) {
			t.Fatalf("expected six digits, got %q", issued.Code)
		}
	}
}

func TestIssueInvalidatesPreviousCode(t *testing.T) {
	manager, _, _ := newTestManager(t)

	first, err := manager.Issue(context.Background(), 1)
	if err != nil {
		t.Fatalf("Issue first: %v", err)
	}
	second, err := manager.Issue(context.Background(), 1)
	if err != nil {
		t.Fatalf("Issue second: %v", err)
	}
	if first.Code != second.Code {
		if outcome := manager.Verify(1, first.Code); outcome == OutcomeAuthenticated {
			t.Fatalf("old code must not authenticate")
		}
	}
	if outcome := manager.Verify(1, second.Code); outcome != OutcomeAuthenticated {
		t.Fatalf("expected new code to authenticate, got %s", outcome)
	}
}

func TestVerifyExpiresAfterFiveMinutes(t *testing.T) {
	manager, _, clock := newTestManager(t)

	issued, err := manager.Issue(context.Background(), 1)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	clock.Advance(DefaultCodeTTL + time.Second)
	if manager.Pending(1) {
		t.Fatalf("expired code must not be pending")
	}
	if outcome := manager.Verify(1, issued.Code); outcome != OutcomeExpired {
		t.Fatalf("expected EXPIRED, got %s", outcome)
	}
	if outcome := manager.Verify(1, issued.Code); outcome != OutcomeExpired {
		t.Fatalf("expected EXPIRED after purge, got %s", outcome)
	}
}

func TestVerifyWithoutCodeIsExpired(t *testing.T) {
	manager, _, _ := newTestManager(t)
	if outcome := manager.Verify(1, "000000"); outcome != OutcomeExpired {
		t.Fatalf("expected EXPIRED, got %s", outcome)
	}
	if !errors.Is(OutcomeExpired.Err(), ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired mapping")
	}
}

func TestVerifyRateLimitsAfterFiveMismatches(t *testing.T) {
	manager, _, _ := newTestManager(t)

	issued, err := manager.Issue(context.Background(), 1)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	wrong := "000000"
	if issued.Code == wrong {
		wrong = "111111"
	}
	for i := 0; i < DefaultMaxAttempts; i++ {
		if outcome := manager.Verify(1, wrong); outcome != OutcomeMismatch {
			t.Fatalf("attempt %d: expected MISMATCH, got %s", i+1, outcome)
		}
	}
	if outcome := manager.Verify(1, issued.Code); outcome != OutcomeRateLimited {
		t.Fatalf("expected RATE_LIMITED on sixth attempt, got %s", outcome)
	}
	if !manager.Pending(1) {
		t.Fatalf("locked challenge should still allow a resend")
	}

	fresh, err := manager.Issue(context.Background(), 1)
	if err != nil {
		t.Fatalf("Issue fresh: %v", err)
	}
	if outcome := manager.Verify(1, fresh.Code); outcome != OutcomeAuthenticated {
		t.Fatalf("expected fresh code to authenticate, got %s", outcome)
	}
}

func TestMismatchCounterIsPerUser(t *testing.T) {
	manager, _, _ := newTestManager(t)

	alice, err := manager.Issue(context.Background(), 1)
	if err != nil {
		t.Fatalf("Issue alice: %v", err)
	}
	bob, err := manager.Issue(context.Background(), 2)
	if err != nil {
		t.Fatalf("Issue bob: %v", err)
	}
	wrong := "999999"
	if bob.Code == wrong {
		wrong = "888888"
	}
	for i := 0; i < DefaultMaxAttempts; i++ {
		manager.Verify(2, wrong)
	}
	if outcome := manager.Verify(1, alice.Code); outcome != OutcomeAuthenticated {
		t.Fatalf("bob's failures must not affect alice, got %s", outcome)
	}
}

func TestIssueUnknownUser(t *testing.T) {
	manager, sender, _ := newTestManager(t)
	if _, err := manager.Issue(context.Background(), 42); !errors.Is(err, ErrChallengeCreation) {
		t.Fatalf("expected ErrChallengeCreation, got %v", err)
	}
	if sender.calls != 0 {
		t.Fatalf("no email expected for unknown user")
	}
}

func TestIssueDeliveryFailureIsWarning(t *testing.T) {
	manager, sender, _ := newTestManager(t)
	sender.err = errors.New("smtp down")

	issued, err := manager.Issue(context.Background(), 1)
	if err != nil {
		t.Fatalf("Issue must not fail on delivery error: %v", err)
	}
	if issued.DeliveryErr == nil {
		t.Fatalf("expected delivery warning")
	}
	if outcome := manager.Verify(1, issued.Code); outcome != OutcomeAuthenticated {
		t.Fatalf("code must stay valid after delivery failure, got %s", outcome)
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	manager, _, clock := newTestManager(t)
	if _, err := manager.Issue(context.Background(), 1); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	clock.Advance(2 * time.Minute)
	if _, err := manager.Issue(context.Background(), 2); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	clock.Advance(4 * time.Minute)
	if removed := manager.Sweep(); removed != 1 {
		t.Fatalf("expected one expired code swept, got %d", removed)
	}
	if !manager.Pending(2) {
		t.Fatalf("bob's code should still be pending")
	}
}

func TestConcurrentVerifyConsumesOnce(t *testing.T) {
	manager, _, _ := newTestManager(t)
	issued, err := manager.Issue(context.Background(), 1)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if manager.Verify(1, issued.Code) == OutcomeAuthenticated {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if successes != 1 {
		t.Fatalf("expected exactly one successful verification, got %d", successes)
	}
}
