package models

import "time"

// Alert types.
const (
	AlertTypeEmail = "EMAIL"
)

// Alert is a notification raised for an error or created by an operator.
type Alert struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"` // Primary key.

	ApplicationID *uint64 `gorm:"index" json:"application_id,omitempty"`                // Scoped application, nil for system-wide alerts.
	ErrorLogID    *uint64 `gorm:"index" json:"error_log_id,omitempty"`                  // Originating error log.
	Name          string  `gorm:"type:text;not null" json:"name"`                       // Title, usually the application name.
	Description   string  `gorm:"type:text" json:"description,omitempty"`               // Longer text.
	Condition     string  `gorm:"type:text;not null" json:"condition"`                  // Human-readable trigger condition.
	Recipients    string  `gorm:"type:text" json:"recipients,omitempty"`                // Comma-separated email recipients.
	AlertType     string  `gorm:"type:text;not null;default:'EMAIL'" json:"alert_type"` // Delivery channel.
	AlertLevel    string  `gorm:"type:text;not null" json:"alert_level"`                // Upper-cased severity.
	Message       string  `gorm:"type:text" json:"message,omitempty"`                   // Message sent to recipients.

	Active   bool `gorm:"not null;default:true" json:"active"`    // Whether the alert is live.
	Resolved bool `gorm:"not null;default:false" json:"resolved"` // Whether an operator resolved it.

	CreatedBy *uint64 `gorm:"index" json:"created_by,omitempty"` // Creating user, nil for automatic alerts.

	CreatedAt  time.Time  `gorm:"not null;autoCreateTime" json:"created_at"` // Creation timestamp.
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`                     // Resolution timestamp.
}
