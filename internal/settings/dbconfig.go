package settings

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// dbConfigSnapshot is the process-wide copy of the settings table.
type dbConfigSnapshot struct {
	mu        sync.RWMutex
	updatedAt time.Time
	values    map[string]json.RawMessage
}

var dbConfig = &dbConfigSnapshot{values: map[string]json.RawMessage{}}

// StoreDBConfig replaces the settings snapshot.
func StoreDBConfig(updatedAt time.Time, values map[string]json.RawMessage) {
	next := make(map[string]json.RawMessage, len(values))
	for key, value := range values {
		trimmed := strings.TrimSpace(key)
		if trimmed == "" {
			continue
		}
		next[trimmed] = append(json.RawMessage(nil), value...)
	}
	dbConfig.mu.Lock()
	dbConfig.values = next
	dbConfig.updatedAt = updatedAt.UTC()
	dbConfig.mu.Unlock()
}

// StoreDBConfigValue sets a single key in the snapshot without touching the others.
func StoreDBConfigValue(key string, value json.RawMessage, updatedAt time.Time) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return
	}
	dbConfig.mu.Lock()
	dbConfig.values[trimmed] = append(json.RawMessage(nil), value...)
	if updatedAt.After(dbConfig.updatedAt) {
		dbConfig.updatedAt = updatedAt.UTC()
	}
	dbConfig.mu.Unlock()
}

// DBConfigValue returns a copy of the raw value stored for key.
func DBConfigValue(key string) (json.RawMessage, bool) {
	dbConfig.mu.RLock()
	defer dbConfig.mu.RUnlock()
	raw, ok := dbConfig.values[strings.TrimSpace(key)]
	if !ok {
		return nil, false
	}
	return append(json.RawMessage(nil), raw...), true
}

// DBConfigUpdatedAt reports when the snapshot last changed.
func DBConfigUpdatedAt() time.Time {
	dbConfig.mu.RLock()
	defer dbConfig.mu.RUnlock()
	return dbConfig.updatedAt
}

// TwoFactorRequired reports whether every login must pass the one-time code challenge.
func TwoFactorRequired() bool {
	raw, ok := DBConfigValue(TwoFactorRequiredKey)
	if !ok {
		return DefaultTwoFactorRequired
	}
	enabled, okParse := ParseBool(raw)
	if !okParse {
		return DefaultTwoFactorRequired
	}
	return enabled
}

// SetTwoFactorRequired updates the in-process toggle. Callers persist the setting row first.
func SetTwoFactorRequired(enabled bool, updatedAt time.Time) {
	raw, _ := json.Marshal(enabled)
	StoreDBConfigValue(TwoFactorRequiredKey, raw, updatedAt)
}

// IntValue reads a non-negative integer setting or returns the fallback.
func IntValue(key string, fallback int) int {
	raw, ok := DBConfigValue(key)
	if !ok {
		return fallback
	}
	value, okParse := ParseNonNegativeInt(raw)
	if !okParse {
		return fallback
	}
	return value
}

// StringValue reads a string setting or returns the fallback.
func StringValue(key string, fallback string) string {
	raw, ok := DBConfigValue(key)
	if !ok {
		return fallback
	}
	value, okParse := ParseString(raw)
	if !okParse {
		return fallback
	}
	return value
}

// BoolValue reads a boolean setting or returns the fallback.
func BoolValue(key string, fallback bool) bool {
	raw, ok := DBConfigValue(key)
	if !ok {
		return fallback
	}
	value, okParse := ParseBool(raw)
	if !okParse {
		return fallback
	}
	return value
}

// isEmptyRaw reports whether raw carries no usable JSON value.
func isEmptyRaw(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
