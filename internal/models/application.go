package models

import "time"

// Application is a monitored client application that reports errors.
type Application struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name        string `gorm:"type:text;not null;uniqueIndex"` // Display name.
	Description string `gorm:"type:text"`                      // Free-form description.
	Technology  string `gorm:"type:text"`                      // Stack label, e.g. "go" or "dotnet".
	Version     string `gorm:"type:text"`                      // Reported application version.
	BaseURL     string `gorm:"type:text"`                      // Public base URL.

	APIKeyHash   string `gorm:"type:text;uniqueIndex"` // SHA-256 of the ingestion key.
	APIKeyPrefix string `gorm:"type:text"`             // Leading characters shown in listings.

	Active bool `gorm:"not null;default:true"`  // Inactive applications reject ingestion.
	Paused bool `gorm:"not null;default:false"` // Paused applications drop ingestion silently.

	CreatedBy *uint64 `gorm:"index"` // Creating user ID.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
