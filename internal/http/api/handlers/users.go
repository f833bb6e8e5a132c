package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/models"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/security"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/store"
	log "github.com/sirupsen/logrus"
)

// UserHandler manages operator accounts. Every change is written to the audit trail.
type UserHandler struct {
	users  *store.UserStore
	audits *store.AuditStore
}

// NewUserHandler constructs a UserHandler. audits may be nil.
func NewUserHandler(users *store.UserStore, audits *store.AuditStore) *UserHandler {
	return &UserHandler{users: users, audits: audits}
}

// createUserRequest defines the request body for user creation.
type createUserRequest struct {
	Username         string `json:"username"`
	Email            string `json:"email"`
	Password         string `json:"password"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	Role             string `json:"role"`
	TwoFactorEnabled bool   `json:"two_factor_enabled"`
}

// Create creates a new local account. Role defaults to VIEWER.
func (h *UserHandler) Create(c *gin.Context) {
	var body createUserRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.Username) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing username"})
		return
	}
	if strings.TrimSpace(body.Email) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing email"})
		return
	}
	if strings.TrimSpace(body.Password) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing password"})
		return
	}
	role := security.RoleViewer
	if strings.TrimSpace(body.Role) != "" {
		parsed, ok := security.ParseRole(body.Role)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
			return
		}
		role = parsed
	}

	user, errCreate := h.users.Create(c.Request.Context(), store.CreateUserInput{
		Username:         body.Username,
		Email:            body.Email,
		Password:         body.Password,
		FirstName:        body.FirstName,
		LastName:         body.LastName,
		Role:             role,
		TwoFactorEnabled: body.TwoFactorEnabled,
	})
	if errCreate != nil {
		if errors.Is(errCreate, store.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "username or email already exists"})
			return
		}
		log.WithError(errCreate).Error("users: create failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create user failed"})
		return
	}
	recordAudit(c, h.audits, store.AuditEntry{
		Action:     models.AuditUserCreated,
		EntityType: models.AuditEntityUser,
		EntityID:   user.ID,
		NewValues:  user.Username + " " + user.Role,
	})
	c.JSON(http.StatusCreated, formatUser(user))
}

// List returns users filtered by search.
func (h *UserHandler) List(c *gin.Context) {
	rows, total, errList := h.users.List(c.Request.Context(), c.Query("search"), pageFromQuery(c))
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list users failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatUser(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"users": out, "total": total})
}

// Disable blocks sign-in for a user.
func (h *UserHandler) Disable(c *gin.Context) {
	h.setActive(c, false)
}

// Enable restores sign-in for a user.
func (h *UserHandler) Enable(c *gin.Context) {
	h.setActive(c, true)
}

func (h *UserHandler) setActive(c *gin.Context, active bool) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if identity, okIdentity := CurrentIdentity(c); okIdentity && identity.UserID == id && !active {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot disable yourself"})
		return
	}
	if errUpdate := h.users.SetActive(c.Request.Context(), id, active); errUpdate != nil {
		writeUpdateError(c, errUpdate, "update user failed")
		return
	}
	action := models.AuditUserDisabled
	if active {
		action = models.AuditUserEnabled
	}
	recordAudit(c, h.audits, store.AuditEntry{Action: action, EntityType: models.AuditEntityUser, EntityID: id})
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// setTwoFactorRequest toggles a boolean flag.
type setTwoFactorRequest struct {
	Enabled *bool `json:"enabled"`
}

// SetTwoFactor toggles the per-user one-time code requirement.
func (h *UserHandler) SetTwoFactor(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body setTwoFactorRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil || body.Enabled == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if errUpdate := h.users.SetTwoFactor(c.Request.Context(), id, *body.Enabled); errUpdate != nil {
		writeUpdateError(c, errUpdate, "update user failed")
		return
	}
	recordAudit(c, h.audits, twoFactorAudit(id, *body.Enabled))
	c.JSON(http.StatusOK, gin.H{"id": id, "two_factor_enabled": *body.Enabled})
}

// setRoleRequest changes a user's role.
type setRoleRequest struct {
	Role string `json:"role"`
}

// SetRole changes a user's role. Admins cannot demote themselves.
func (h *UserHandler) SetRole(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body setRoleRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	role, okRole := security.ParseRole(body.Role)
	if !okRole {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
		return
	}
	if identity, okIdentity := CurrentIdentity(c); okIdentity && identity.UserID == id && role != identity.Role {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot change your own role"})
		return
	}
	previous, errFind := h.users.FindByID(c.Request.Context(), id)
	if errFind != nil {
		writeUpdateError(c, errFind, "update user failed")
		return
	}
	if errUpdate := h.users.SetRole(c.Request.Context(), id, role); errUpdate != nil {
		writeUpdateError(c, errUpdate, "update user failed")
		return
	}
	recordAudit(c, h.audits, store.AuditEntry{
		Action:     models.AuditUserRoleChanged,
		EntityType: models.AuditEntityUser,
		EntityID:   id,
		OldValues:  previous.Role,
		NewValues:  role.String(),
	})
	c.JSON(http.StatusOK, gin.H{"id": id, "role": role.String()})
}

// twoFactorAudit describes a per-user two-factor change.
func twoFactorAudit(userID uint64, enabled bool) store.AuditEntry {
	action := models.AuditTwoFactorDisabled
	if enabled {
		action = models.AuditTwoFactorEnabled
	}
	return store.AuditEntry{Action: action, EntityType: models.AuditEntityUser, EntityID: userID}
}

// writeUpdateError maps store errors from single-row updates.
func writeUpdateError(c *gin.Context, err error, message string) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	log.WithError(err).Warn(message)
	c.JSON(http.StatusInternalServerError, gin.H{"error": message})
}

// formatUser formats a user row into response JSON without credentials.
func formatUser(user *models.User) gin.H {
	if user == nil {
		return gin.H{}
	}
	return gin.H{
		"id":                 user.ID,
		"username":           user.Username,
		"email":              user.Email,
		"first_name":         user.FirstName,
		"last_name":          user.LastName,
		"role":               user.Role,
		"auth_provider":      user.AuthProvider,
		"active":             user.Active,
		"two_factor_enabled": user.TwoFactorEnabled,
		"last_login_at":      user.LastLoginAt,
		"created_at":         user.CreatedAt,
	}
}
