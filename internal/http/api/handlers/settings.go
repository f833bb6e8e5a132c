package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	dbutil "github.com/router-for-me/ErrorMonitorBusiness/internal/db"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/http/api/permissions"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/models"
	internalsettings "github.com/router-for-me/ErrorMonitorBusiness/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SettingHandler manages global settings values.
type SettingHandler struct {
	db *gorm.DB // Database handle for settings.
}

// NewSettingHandler constructs a settings handler.
func NewSettingHandler(db *gorm.DB) *SettingHandler {
	return &SettingHandler{db: db}
}

// upsertSettingRequest captures the payload for writing a setting.
type upsertSettingRequest struct {
	Key   string          `json:"key"`   // Setting key.
	Value json.RawMessage `json:"value"` // JSON value payload.
}

var positiveIntSettingKeys = map[string]struct{}{
	internalsettings.LoginRateWindowSecondsKey: {},
}

var nonNegativeIntSettingKeys = map[string]struct{}{
	internalsettings.LoginRateLimitKey:       {},
	internalsettings.OTPResendLimitKey:       {},
	internalsettings.ErrorRetentionPerAppKey: {},
	internalsettings.RateLimitRedisDBKey:     {},
}

var boolSettingKeys = map[string]struct{}{
	internalsettings.TwoFactorRequiredKey:     {},
	internalsettings.RateLimitRedisEnabledKey: {},
}

var stringSettingKeys = map[string]struct{}{
	internalsettings.SiteNameKey:               {},
	internalsettings.AlertRecipientsKey:        {},
	internalsettings.RateLimitRedisAddrKey:     {},
	internalsettings.RateLimitRedisPasswordKey: {},
	internalsettings.RateLimitRedisPrefixKey:   {},
}

// secretSettingKeys are masked in listings.
var secretSettingKeys = map[string]struct{}{
	internalsettings.RateLimitRedisPasswordKey: {},
}

var (
	errPositiveIntegerValue    = errors.New("value must be a positive integer")
	errNonNegativeIntegerValue = errors.New("value must be a non-negative integer")
	errBooleanValue            = errors.New("value must be a boolean")
	errStringValue             = errors.New("value must be a string")
	errMissingValue            = errors.New("value is required")
)

// List returns all settings sorted by key.
func (h *SettingHandler) List(c *gin.Context) {
	var rows []models.Setting
	if errFind := h.db.WithContext(c.Request.Context()).Order("key ASC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list settings failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, h.formatSetting(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"settings": out})
}

// Upsert validates and writes a setting, then updates the in-process snapshot.
func (h *SettingHandler) Upsert(c *gin.Context) {
	var body upsertSettingRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	key := strings.TrimSpace(body.Key)
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
		return
	}
	if errValidate := validateSettingValue(key, body.Value); errValidate != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errValidate.Error()})
		return
	}

	updatedAt, errUpsert := dbutil.UpsertSetting(h.db.WithContext(c.Request.Context()), key, body.Value)
	if errUpsert != nil {
		log.WithError(errUpsert).WithField("key", key).Error("settings: upsert failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	internalsettings.StoreDBConfigValue(key, body.Value, updatedAt)
	log.WithField("key", key).Info("settings: updated")
	c.JSON(http.StatusOK, gin.H{"key": key, "value": body.Value, "updated_at": updatedAt})
}

// GetTwoFactor reports the global one-time code requirement.
func (h *SettingHandler) GetTwoFactor(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"two_factor_required": internalsettings.TwoFactorRequired()})
}

// setTwoFactorRequiredRequest toggles the global requirement.
type setTwoFactorRequiredRequest struct {
	Enabled *bool `json:"enabled"`
}

// SetTwoFactor persists the global toggle. It applies to logins that start afterwards.
func (h *SettingHandler) SetTwoFactor(c *gin.Context) {
	var body setTwoFactorRequiredRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil || body.Enabled == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	raw, _ := json.Marshal(*body.Enabled)
	updatedAt, errUpsert := dbutil.UpsertSetting(h.db.WithContext(c.Request.Context()), internalsettings.TwoFactorRequiredKey, raw)
	if errUpsert != nil {
		log.WithError(errUpsert).Error("settings: persist two-factor toggle failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	internalsettings.SetTwoFactorRequired(*body.Enabled, updatedAt)

	fields := log.Fields{"two_factor_required": *body.Enabled}
	if identity, ok := CurrentIdentity(c); ok {
		fields["user_id"] = identity.UserID
	}
	log.WithFields(fields).Info("settings: global two-factor changed")
	c.JSON(http.StatusOK, gin.H{"two_factor_required": *body.Enabled})
}

// Permissions lists every guarded route and the caller's grants.
func (h *SettingHandler) Permissions(c *gin.Context) {
	out := gin.H{"permissions": permissions.Definitions()}
	if identity, ok := CurrentIdentity(c); ok {
		out["granted"] = permissions.Capabilities(identity.Role)
	}
	c.JSON(http.StatusOK, out)
}

func validateSettingValue(key string, value json.RawMessage) error {
	if len(value) == 0 {
		return errMissingValue
	}
	if _, ok := positiveIntSettingKeys[key]; ok {
		if parsed, okParse := internalsettings.ParseNonNegativeInt(value); !okParse || parsed == 0 {
			return errPositiveIntegerValue
		}
		return nil
	}
	if _, ok := nonNegativeIntSettingKeys[key]; ok {
		if _, okParse := internalsettings.ParseNonNegativeInt(value); !okParse {
			return errNonNegativeIntegerValue
		}
		return nil
	}
	if _, ok := boolSettingKeys[key]; ok {
		if _, okParse := internalsettings.ParseBool(value); !okParse {
			return errBooleanValue
		}
		return nil
	}
	if _, ok := stringSettingKeys[key]; ok {
		if _, okParse := internalsettings.ParseString(value); !okParse {
			return errStringValue
		}
		return nil
	}
	if !json.Valid(value) {
		return errors.New("value must be valid json")
	}
	return nil
}

// formatSetting formats a setting row into response JSON.
func (h *SettingHandler) formatSetting(s *models.Setting) gin.H {
	value := json.RawMessage(s.Value)
	if _, secret := secretSettingKeys[s.Key]; secret && len(value) > 0 && string(value) != `""` {
		value = json.RawMessage(`"********"`)
	}
	return gin.H{
		"key":        s.Key,
		"value":      value,
		"updated_at": s.UpdatedAt,
	}
}
