package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/auth"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/challenge"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/http/api/permissions"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/models"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/ratelimit"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/security"
	internalsettings "github.com/router-for-me/ErrorMonitorBusiness/internal/settings"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/store"
	log "github.com/sirupsen/logrus"
)

// AuthHandler serves login, one-time code verification and session endpoints.
type AuthHandler struct {
	verifier   *auth.Verifier
	challenges *challenge.Manager
	tokens     *security.TokenIssuer
	users      *store.UserStore
	limits     *ratelimit.Manager
	audits     *store.AuditStore
}

// NewAuthHandler constructs an AuthHandler. limits may be nil to disable throttling
// and audits may be nil to skip the audit trail.
func NewAuthHandler(verifier *auth.Verifier, challenges *challenge.Manager, tokens *security.TokenIssuer, users *store.UserStore, limits *ratelimit.Manager, audits *store.AuditStore) *AuthHandler {
	return &AuthHandler{
		verifier:   verifier,
		challenges: challenges,
		tokens:     tokens,
		users:      users,
		limits:     limits,
		audits:     audits,
	}
}

// loginRequest defines the request body for password login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// userIDRequest carries a user ID as a JSON number or numeric string.
type userIDRequest struct {
	UserID flexibleID `json:"user_id"`
	Code   string     `json:"code"`
}

// flexibleID accepts 42 and "42".
type flexibleID uint64

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	text := string(data)
	if len(data) > 0 && data[0] == '"' {
		if errUnquote := json.Unmarshal(data, &text); errUnquote != nil {
			return errUnquote
		}
	}
	value, errParse := strconv.ParseUint(strings.TrimSpace(text), 10, 64)
	if errParse != nil {
		return errParse
	}
	*f = flexibleID(value)
	return nil
}

// Login checks credentials and either issues a token or starts the one-time code challenge.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if h.throttled(c, h.limits.Settings().LoginPolicy()) {
		return
	}

	result, errVerify := h.verifier.Verify(c.Request.Context(), body.Username, body.Password)
	if errVerify != nil {
		log.WithError(errVerify).Error("auth: verify credentials failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	switch result.Status {
	case auth.StatusAuthenticated:
		log.WithFields(log.Fields{"user_id": result.Identity.UserID, "client_ip": c.ClientIP()}).Info("auth: login succeeded")
		recordAudit(c, h.audits, store.AuditEntry{
			UserID:     result.Identity.UserID,
			Username:   result.Identity.Username,
			Action:     models.AuditLogin,
			EntityType: models.AuditEntityUser,
			EntityID:   result.Identity.UserID,
		})
		h.respondWithToken(c, result.Identity, result.User)
	case auth.StatusSecondFactorRequired:
		issued, errIssue := h.challenges.Issue(c.Request.Context(), result.User.ID)
		if errIssue != nil {
			log.WithError(errIssue).WithField("user_id", result.User.ID).Error("auth: issue verification code failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "issue verification code failed"})
			return
		}
		if issued.DeliveryErr != nil {
			log.WithError(issued.DeliveryErr).WithField("user_id", result.User.ID).Warn("auth: verification code email not delivered")
		}
		c.JSON(http.StatusOK, gin.H{
			"two_factor_required": true,
			"user_id":             result.User.ID,
			"email":               maskEmail(issued.Email),
			"expires_at":          issued.ExpiresAt,
			"email_sent":          issued.DeliveryErr == nil,
		})
	default:
		log.WithFields(log.Fields{"username": strings.TrimSpace(body.Username), "client_ip": c.ClientIP()}).Info("auth: login rejected")
		recordAudit(c, h.audits, store.AuditEntry{
			Username:   strings.TrimSpace(body.Username),
			Action:     models.AuditLoginFailed,
			EntityType: models.AuditEntityUser,
		})
		c.JSON(http.StatusUnauthorized, gin.H{"error": auth.ErrAuthenticationFailed.Error()})
	}
}

// VerifyOTP completes login with the emailed code.
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var body userIDRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	userID := uint64(body.UserID)
	code := strings.TrimSpace(body.Code)
	if userID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user"})
		return
	}
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code"})
		return
	}

	outcome := h.challenges.Verify(userID, code)
	if outcome != challenge.OutcomeAuthenticated {
		log.WithFields(log.Fields{"user_id": userID, "outcome": outcome.String()}).Info("auth: verification code rejected")
		recordAudit(c, h.audits, store.AuditEntry{
			UserID:     userID,
			Action:     models.AuditOTPFailed,
			EntityType: models.AuditEntityUser,
			EntityID:   userID,
			NewValues:  outcome.String(),
		})
		status := http.StatusUnauthorized
		if outcome == challenge.OutcomeRateLimited {
			status = http.StatusTooManyRequests
		}
		c.JSON(status, gin.H{"error": outcome.Err().Error(), "reason": strings.ToLower(outcome.String())})
		return
	}

	user, errFind := h.users.FindByID(c.Request.Context(), userID)
	if errFind != nil {
		if errors.Is(errFind, store.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": auth.ErrAuthenticationFailed.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query user failed"})
		return
	}
	role, okRole := security.ParseRole(user.Role)
	if !user.Active || !okRole {
		c.JSON(http.StatusUnauthorized, gin.H{"error": auth.ErrAuthenticationFailed.Error()})
		return
	}
	log.WithFields(log.Fields{"user_id": user.ID, "client_ip": c.ClientIP()}).Info("auth: login succeeded with verification code")
	h.verifier.RecordLogin(user.ID)
	recordAudit(c, h.audits, store.AuditEntry{
		UserID:     user.ID,
		Username:   user.Username,
		Action:     models.AuditOTPVerified,
		EntityType: models.AuditEntityUser,
		EntityID:   user.ID,
	})
	h.respondWithToken(c, security.Identity{UserID: user.ID, Username: user.Username, Role: role}, user)
}

// ResendOTP issues a fresh code while a challenge is outstanding.
func (h *AuthHandler) ResendOTP(c *gin.Context) {
	var body userIDRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	userID := uint64(body.UserID)
	if userID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user"})
		return
	}
	if h.throttled(c, h.limits.Settings().ResendPolicy()) {
		return
	}
	if !h.challenges.Pending(userID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no pending verification"})
		return
	}

	issued, errIssue := h.challenges.Issue(c.Request.Context(), userID)
	if errIssue != nil {
		if errors.Is(errIssue, challenge.ErrChallengeCreation) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue verification code failed"})
		return
	}
	if issued.DeliveryErr != nil {
		log.WithError(issued.DeliveryErr).WithField("user_id", userID).Warn("auth: resent verification code not delivered")
	}
	c.JSON(http.StatusOK, gin.H{
		"message":    "verification code sent",
		"email":      maskEmail(issued.Email),
		"expires_at": issued.ExpiresAt,
		"email_sent": issued.DeliveryErr == nil,
	})
}

// Me returns the caller's profile and granted permissions.
func (h *AuthHandler) Me(c *gin.Context) {
	identity, _ := CurrentIdentity(c)
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":        formatUser(user),
		"permissions": permissions.Capabilities(identity.Role),
	})
}

// Logout acknowledges a client-side logout. Tokens stay valid until they expire.
func (h *AuthHandler) Logout(c *gin.Context) {
	if identity, ok := CurrentIdentity(c); ok {
		log.WithField("user_id", identity.UserID).Info("auth: logout")
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// TwoFactorStatus reports the caller's own flag and the global toggle.
func (h *AuthHandler) TwoFactorStatus(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	global := internalsettings.TwoFactorRequired()
	c.JSON(http.StatusOK, gin.H{
		"enabled":        user.TwoFactorEnabled,
		"global_enabled": global,
		"required":       user.TwoFactorEnabled || global,
	})
}

// EnableTwoFactor turns on the emailed code for the caller.
func (h *AuthHandler) EnableTwoFactor(c *gin.Context) {
	h.setOwnTwoFactor(c, true)
}

// DisableTwoFactor turns off the caller's own flag. The global toggle still applies.
func (h *AuthHandler) DisableTwoFactor(c *gin.Context) {
	h.setOwnTwoFactor(c, false)
}

func (h *AuthHandler) setOwnTwoFactor(c *gin.Context, enabled bool) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	if enabled && strings.TrimSpace(user.Email) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "an email address is required for verification codes"})
		return
	}
	if errUpdate := h.users.SetTwoFactor(c.Request.Context(), user.ID, enabled); errUpdate != nil {
		writeUpdateError(c, errUpdate, "update two factor failed")
		return
	}
	recordAudit(c, h.audits, twoFactorAudit(user.ID, enabled))
	global := internalsettings.TwoFactorRequired()
	c.JSON(http.StatusOK, gin.H{
		"enabled":        enabled,
		"global_enabled": global,
		"required":       enabled || global,
	})
}

// currentUser loads the caller's row, writing the error response on failure.
func (h *AuthHandler) currentUser(c *gin.Context) (*models.User, bool) {
	identity, ok := CurrentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}
	user, errFind := h.users.FindByID(c.Request.Context(), identity.UserID)
	if errFind != nil {
		if errors.Is(errFind, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query user failed"})
		return nil, false
	}
	return user, true
}

func (h *AuthHandler) respondWithToken(c *gin.Context, identity security.Identity, user *models.User) {
	token, expiresAt, errIssue := h.tokens.Issue(identity)
	if errIssue != nil {
		log.WithError(errIssue).WithField("user_id", identity.UserID).Error("auth: issue token failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"token_type": "Bearer",
		"expires_at": expiresAt,
		"user":       formatUser(user),
	})
}

// throttled applies policy to the client IP and writes 429 when exceeded.
// Limiter errors fail open.
func (h *AuthHandler) throttled(c *gin.Context, policy ratelimit.Policy) bool {
	if h.limits == nil {
		return false
	}
	result, errAllow := h.limits.Allow(c.Request.Context(), policy, c.ClientIP())
	if errAllow != nil {
		log.WithError(errAllow).WithField("policy", policy.Name).Warn("auth: rate limit check failed")
		return false
	}
	if result.Allowed {
		return false
	}
	if !result.Reset.IsZero() {
		retryAfter := int(time.Until(result.Reset).Seconds()) + 1
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter))
	}
	c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
	return true
}

// maskEmail keeps the first character of the local part.
func maskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return ""
	}
	return email[:1] + "***" + email[at:]
}
