package models

import "time"

// Setting stores one global configuration value as JSON.
type Setting struct {
	Key       string    `gorm:"type:text;primaryKey"`    // Setting key.
	Value     JSONText  `gorm:"not null"`                // JSON value.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
