package db

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/router-for-me/ErrorMonitorBusiness/internal/models"
	internalsettings "github.com/router-for-me/ErrorMonitorBusiness/internal/settings"
)

func TestMigrateSeedsDefaultSettings(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "monitor-test.db")
	conn, err := Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	// A second run must be a no-op.
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate again: %v", errMigrate)
	}

	var setting models.Setting
	if errFind := conn.Where("key = ?", internalsettings.TwoFactorRequiredKey).First(&setting).Error; errFind != nil {
		t.Fatalf("find two factor setting: %v", errFind)
	}
	enabled, ok := internalsettings.ParseBool(json.RawMessage(setting.Value))
	if !ok || enabled {
		t.Fatalf("expected seeded two factor setting false, got %s", string(setting.Value))
	}

	var count int64
	if errCount := conn.Model(&models.Setting{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count settings: %v", errCount)
	}
	if count != 6 {
		t.Fatalf("expected 6 seeded settings, got %d", count)
	}
}

func TestUpsertSetting(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "monitor-test.db")
	conn, err := Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	if _, errUpsert := UpsertSetting(conn, "CUSTOM_KEY", json.RawMessage(`"a"`)); errUpsert != nil {
		t.Fatalf("insert setting: %v", errUpsert)
	}
	if _, errUpsert := UpsertSetting(conn, "CUSTOM_KEY", json.RawMessage(`"b"`)); errUpsert != nil {
		t.Fatalf("update setting: %v", errUpsert)
	}

	var setting models.Setting
	if errFind := conn.Where("key = ?", "CUSTOM_KEY").First(&setting).Error; errFind != nil {
		t.Fatalf("find setting: %v", errFind)
	}
	if string(setting.Value) != `"b"` {
		t.Fatalf("expected updated value, got %s", string(setting.Value))
	}
}

func TestIsUniqueViolation(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "monitor-test.db")
	conn, err := Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	first := models.User{Username: "alice", Email: "alice@example.com", Role: "VIEWER"}
	if errCreate := conn.Create(&first).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	dup := models.User{Username: "alice", Email: "other@example.com", Role: "VIEWER"}
	errDup := conn.Create(&dup).Error
	if !IsUniqueViolation(errDup) {
		t.Fatalf("expected unique violation, got %v", errDup)
	}
	if IsUniqueViolation(errors.New("boom")) {
		t.Fatalf("plain error must not be a unique violation")
	}
}

func TestMigrateAfterReopenKeepsNumericSettings(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "monitor-test.db")
	conn, err := Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	if _, errUpsert := UpsertSetting(conn, internalsettings.LoginRateLimitKey, json.RawMessage(`12`)); errUpsert != nil {
		t.Fatalf("upsert: %v", errUpsert)
	}
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		t.Fatalf("sql db: %v", errDB)
	}
	_ = sqlDB.Close()

	reopened, err := Open(dsn)
	if err != nil {
		t.Fatalf("reopen db: %v", err)
	}
	if errMigrate := Migrate(reopened); errMigrate != nil {
		t.Fatalf("migrate after reopen: %v", errMigrate)
	}

	var settings []models.Setting
	if errFind := reopened.Order("key ASC").Find(&settings).Error; errFind != nil {
		t.Fatalf("list settings: %v", errFind)
	}
	found := false
	for _, setting := range settings {
		if setting.Key == internalsettings.LoginRateLimitKey {
			found = true
			if string(setting.Value) != "12" {
				t.Fatalf("expected 12, got %q", string(setting.Value))
			}
		}
	}
	if !found {
		t.Fatalf("login rate limit setting missing")
	}

	var storedType string
	if errType := reopened.Raw("SELECT typeof(value) FROM settings WHERE key = ?", internalsettings.LoginRateLimitKey).Scan(&storedType).Error; errType != nil {
		t.Fatalf("typeof: %v", errType)
	}
	if storedType != "text" {
		t.Fatalf("expected value stored as text, got %s", storedType)
	}
}
