package models

import "time"

// Authentication providers for a user account.
const (
	AuthProviderLocal  = "LOCAL"
	AuthProviderGoogle = "GOOGLE"
)

// User represents an operator account stored in the database.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Username  string  `gorm:"type:text;not null;uniqueIndex"` // Unique login name.
	Email     string  `gorm:"type:text;not null;uniqueIndex"` // Email address, receives one-time codes.
	Password  *string `gorm:"type:text"`                      // Hashed password, nil for external identities.
	FirstName string  `gorm:"type:text"`                      // Given name.
	LastName  string  `gorm:"type:text"`                      // Family name.

	AuthProvider string `gorm:"type:text;not null;default:'LOCAL'"`  // LOCAL or GOOGLE.
	Role         string `gorm:"type:text;not null;default:'VIEWER'"` // ADMIN, DEVELOPER or VIEWER.

	Active           bool `gorm:"not null;default:true"`  // Whether the user can sign in.
	TwoFactorEnabled bool `gorm:"not null;default:false"` // Requires the email one-time code.

	LastLoginAt *time.Time // Last successful password check.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// HasPassword reports whether the account can sign in with a local password.
func (u *User) HasPassword() bool {
	return u != nil && u.Password != nil && *u.Password != ""
}
