package models

import "time"

// Audit actions.
const (
	AuditLogin             = "LOGIN"
	AuditLoginFailed       = "LOGIN_FAILED"
	AuditOTPVerified       = "OTP_VERIFIED"
	AuditOTPFailed         = "OTP_VERIFICATION_FAILED"
	AuditUserCreated       = "USER_CREATED"
	AuditUserDisabled      = "USER_DISABLED"
	AuditUserEnabled       = "USER_ENABLED"
	AuditUserRoleChanged   = "USER_ROLE_CHANGED"
	AuditTwoFactorEnabled  = "TWO_FACTOR_ENABLED"
	AuditTwoFactorDisabled = "TWO_FACTOR_DISABLED"
)

// Audit entity types.
const (
	AuditEntityUser = "User"
)

// AuditLog records a security-relevant action.
type AuditLog struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"` // Primary key.

	UserID   *uint64 `gorm:"index" json:"user_id,omitempty"`      // Acting user, nil when unknown.
	Username string  `gorm:"type:text" json:"username,omitempty"` // Acting or attempted username.

	Action     string `gorm:"type:text;not null;index" json:"action"` // One of the Audit* actions.
	EntityType string `gorm:"type:text;index" json:"entity_type"`     // Affected entity kind.
	EntityID   string `gorm:"type:text" json:"entity_id,omitempty"`   // Affected entity key.
	OldValues  string `gorm:"type:text" json:"old_values,omitempty"`  // Previous state.
	NewValues  string `gorm:"type:text" json:"new_values,omitempty"`  // New state.
	IPAddress  string `gorm:"type:text" json:"ip_address,omitempty"`  // Client IP address.
	UserAgent  string `gorm:"type:text" json:"user_agent,omitempty"`  // Client user agent.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index" json:"created_at"` // Creation timestamp.
}
