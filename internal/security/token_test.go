package security

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/config"
)

func newTestIssuer(t *testing.T, now func() time.Time) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer(config.JWTConfig{Secret: "test-secret", Expiry: 2 * time.Hour})
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	return issuer.WithClock(now)
}

func TestTokenRoundTrip(t *testing.T) {
	issuer := newTestIssuer(t, time.Now)
	identity := Identity{UserID: 7, Username: "alice", Role: RoleDeveloper}

	token, expiresAt, err := issuer.Issue(identity)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(expiresAt) <= time.Hour {
		t.Fatalf("expected expiry about two hours out, got %s", expiresAt)
	}

	got, err := issuer.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got != identity {
		t.Fatalf("expected %+v, got %+v", identity, got)
	}
}

func TestTokenFailuresAreUniform(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := base
	issuer := newTestIssuer(t, func() time.Time { return now })

	token, _, err := issuer.Issue(Identity{UserID: 1, Username: "bob", Role: RoleViewer})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	other, errOther := NewTokenIssuer(config.JWTConfig{Secret: "other-secret", Expiry: time.Hour})
	if errOther != nil {
		t.Fatalf("NewTokenIssuer: %v", errOther)
	}
	foreign, _, errForeign := other.Issue(Identity{UserID: 1, Username: "bob", Role: RoleViewer})
	if errForeign != nil {
		t.Fatalf("Issue foreign: %v", errForeign)
	}

	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	noneToken, errNone := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"uid": 1, "username": "bob", "role": "ADMIN", "iss": tokenIssuer,
		"exp": base.Add(time.Hour).Unix(), "iat": base.Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if errNone != nil {
		t.Fatalf("sign none token: %v", errNone)
	}

	cases := map[string]string{
		"empty":     "",
		"malformed": "not-a-jwt",
		"tampered":  tampered,
		"foreign":   foreign,
		"alg-none":  noneToken,
	}
	for name, candidate := range cases {
		if _, errValidate := issuer.Validate(candidate); errValidate != ErrTokenInvalid {
			t.Fatalf("%s: expected ErrTokenInvalid, got %v", name, errValidate)
		}
	}

	now = base.Add(3 * time.Hour)
	if _, errValidate := issuer.Validate(token); errValidate != ErrTokenInvalid {
		t.Fatalf("expired: expected ErrTokenInvalid, got %v", errValidate)
	}
}

func TestTokenRejectsUnknownRole(t *testing.T) {
	issuer := newTestIssuer(t, time.Now)
	now := time.Now()
	claims := SessionClaims{
		UserID:   3,
		Username: "mallory",
		Role:     "ROOT",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, errValidate := issuer.Validate(token); errValidate != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid, got %v", errValidate)
	}
}

func TestNewTokenIssuerRequiresSecret(t *testing.T) {
	if _, err := NewTokenIssuer(config.JWTConfig{Secret: "  "}); err != ErrMissingSecret {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	if token, ok := BearerToken("Bearer abc"); !ok || token != "abc" {
		t.Fatalf("expected abc, got %q ok=%v", token, ok)
	}
	if token, ok := BearerToken("bearer  xyz "); !ok || token != "xyz" {
		t.Fatalf("expected xyz, got %q ok=%v", token, ok)
	}
	if _, ok := BearerToken("Basic abc"); ok {
		t.Fatalf("expected Basic scheme to be rejected")
	}
	if _, ok := BearerToken("Bearer "); ok {
		t.Fatalf("expected empty bearer to be rejected")
	}
}
