package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/router-for-me/ErrorMonitorBusiness/internal/models"
	internalsettings "github.com/router-for-me/ErrorMonitorBusiness/internal/settings"
	"gorm.io/gorm"
)

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite, DialectPostgres, "":
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}

	if errAutoMigrate := conn.AutoMigrate(
		&models.User{},
		&models.Application{},
		&models.ErrorLog{},
		&models.Alert{},
		&models.Setting{},
		&models.AuditLog{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	if errIndex := ensureErrorLogIndexes(conn); errIndex != nil {
		return errIndex
	}
	return ensureDefaultSettings(conn)
}

// ensureErrorLogIndexes adds the composite index used by per-application listings and retention.
func ensureErrorLogIndexes(conn *gorm.DB) error {
	stmt := "CREATE INDEX IF NOT EXISTS idx_error_logs_app_created ON error_logs (application_id, created_at DESC)"
	if errExec := conn.Exec(stmt).Error; errExec != nil {
		return fmt.Errorf("db: create error log index: %w", errExec)
	}
	return nil
}

// ensureDefaultSettings seeds settings read by the login and retention paths.
func ensureDefaultSettings(conn *gorm.DB) error {
	if errSeed := ensureBoolSetting(conn, internalsettings.TwoFactorRequiredKey, internalsettings.DefaultTwoFactorRequired); errSeed != nil {
		return errSeed
	}
	if errSeed := ensureIntSetting(conn, internalsettings.LoginRateLimitKey, internalsettings.DefaultLoginRateLimit); errSeed != nil {
		return errSeed
	}
	if errSeed := ensureIntSetting(conn, internalsettings.LoginRateWindowSecondsKey, internalsettings.DefaultLoginRateWindowSeconds); errSeed != nil {
		return errSeed
	}
	if errSeed := ensureIntSetting(conn, internalsettings.OTPResendLimitKey, internalsettings.DefaultOTPResendLimit); errSeed != nil {
		return errSeed
	}
	if errSeed := ensureIntSetting(conn, internalsettings.ErrorRetentionPerAppKey, internalsettings.DefaultErrorRetentionPerApp); errSeed != nil {
		return errSeed
	}
	return ensureSetting(conn, internalsettings.SiteNameKey, internalsettings.DefaultSiteName)
}

// ensureIntSetting ensures an integer setting exists and defaults when empty.
func ensureIntSetting(conn *gorm.DB, key string, value int) error {
	return ensureSetting(conn, key, value)
}

// ensureBoolSetting ensures a boolean setting exists and defaults when empty.
func ensureBoolSetting(conn *gorm.DB, key string, value bool) error {
	return ensureSetting(conn, key, value)
}

// ensureSetting creates key with value, or fills it in when the stored value is empty.
func ensureSetting(conn *gorm.DB, key string, value any) error {
	payload, errMarshal := json.Marshal(value)
	if errMarshal != nil {
		return fmt.Errorf("db: marshal %s setting: %w", key, errMarshal)
	}
	rawValue := models.JSONText(payload)

	var existing models.Setting
	if errFind := conn.Where("key = ?", key).First(&existing).Error; errFind == nil {
		trimmed := strings.TrimSpace(string(existing.Value))
		if len(existing.Value) == 0 || trimmed == "" || trimmed == "null" {
			if errUpdate := conn.Model(&existing).Updates(map[string]any{
				"value":      rawValue,
				"updated_at": time.Now().UTC(),
			}).Error; errUpdate != nil {
				return fmt.Errorf("db: update %s setting: %w", key, errUpdate)
			}
		}
		return nil
	} else if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return fmt.Errorf("db: query %s setting: %w", key, errFind)
	}

	setting := models.Setting{
		Key:       key,
		Value:     rawValue,
		UpdatedAt: time.Now().UTC(),
	}
	if errCreate := conn.Create(&setting).Error; errCreate != nil {
		return fmt.Errorf("db: create %s setting: %w", key, errCreate)
	}
	return nil
}

// UpsertSetting stores value under key and returns the stored timestamp.
func UpsertSetting(conn *gorm.DB, key string, value json.RawMessage) (time.Time, error) {
	if conn == nil {
		return time.Time{}, fmt.Errorf("db: nil connection")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return time.Time{}, fmt.Errorf("db: empty setting key")
	}
	now := time.Now().UTC()
	res := conn.Model(&models.Setting{}).Where("key = ?", key).
		Updates(map[string]any{
			"value":      models.JSONText(value),
			"updated_at": now,
		})
	if res.Error != nil {
		return time.Time{}, fmt.Errorf("db: update %s setting: %w", key, res.Error)
	}
	if res.RowsAffected > 0 {
		return now, nil
	}
	setting := models.Setting{Key: key, Value: models.JSONText(value), UpdatedAt: now}
	if errCreate := conn.Create(&setting).Error; errCreate != nil {
		return time.Time{}, fmt.Errorf("db: create %s setting: %w", key, errCreate)
	}
	return now, nil
}
