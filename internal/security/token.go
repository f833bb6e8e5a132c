package security

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/config"
)

// tokenIssuer is the iss claim on every session token.
const tokenIssuer = "error-monitor"

// ErrTokenInvalid is returned for every rejected session token regardless of cause.
var ErrTokenInvalid = errors.New("invalid token")

// ErrMissingSecret indicates the JWT secret is not configured.
var ErrMissingSecret = errors.New("security: missing jwt secret")

// SessionClaims are the JWT claims of a session token.
type SessionClaims struct {
	UserID   uint64 `json:"uid"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and validates HS256 session tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	nowFn  func() time.Time
}

// NewTokenIssuer builds an issuer from the JWT config.
func NewTokenIssuer(cfg config.JWTConfig) (*TokenIssuer, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, ErrMissingSecret
	}
	ttl := cfg.Expiry
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, nowFn: time.Now}, nil
}

// WithClock replaces the issuer clock. Intended for tests.
func (i *TokenIssuer) WithClock(nowFn func() time.Time) *TokenIssuer {
	if i != nil && nowFn != nil {
		i.nowFn = nowFn
	}
	return i
}

// TTL returns the fixed validity window of issued tokens.
func (i *TokenIssuer) TTL() time.Duration {
	if i == nil {
		return 0
	}
	return i.ttl
}

// Issue signs a session token for identity.
func (i *TokenIssuer) Issue(identity Identity) (string, time.Time, error) {
	if i == nil {
		return "", time.Time{}, ErrMissingSecret
	}
	if !identity.Valid() {
		return "", time.Time{}, errors.New("security: cannot issue token for invalid identity")
	}
	now := i.nowFn().UTC()
	expiresAt := now.Add(i.ttl)
	claims := SessionClaims{
		UserID:   identity.UserID,
		Username: identity.Username,
		Role:     identity.Role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   strconv.FormatUint(identity.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, errSign := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if errSign != nil {
		return "", time.Time{}, errSign
	}
	return signed, expiresAt, nil
}

// Validate parses token and returns its identity. Every failure is ErrTokenInvalid.
func (i *TokenIssuer) Validate(token string) (Identity, error) {
	if i == nil {
		return Identity{}, ErrTokenInvalid
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrTokenInvalid
	}
	claims := &SessionClaims{}
	parsed, errParse := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(i.nowFn),
	)
	if errParse != nil || parsed == nil || !parsed.Valid {
		return Identity{}, ErrTokenInvalid
	}
	role, ok := ParseRole(claims.Role)
	if !ok {
		return Identity{}, ErrTokenInvalid
	}
	identity := Identity{UserID: claims.UserID, Username: claims.Username, Role: role}
	if !identity.Valid() {
		return Identity{}, ErrTokenInvalid
	}
	return identity, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header value.
func BearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[len("Bearer "):])
	return token, token != ""
}
