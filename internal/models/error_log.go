package models

import (
	"strings"
	"time"
)

// Error severities.
const (
	SeverityLow      = "Low"
	SeverityMedium   = "Medium"
	SeverityHigh     = "High"
	SeverityCritical = "Critical"
)

// Error log statuses.
const (
	ErrorStatusOpen     = "Open"
	ErrorStatusResolved = "Resolved"
)

// ErrorLog is one error reported by an application.
type ErrorLog struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"` // Primary key.

	ApplicationID uint64       `gorm:"not null;index" json:"application_id"` // Reporting application.
	Application   *Application `gorm:"foreignKey:ApplicationID" json:"-"`    // Reporting application.

	Message     string `gorm:"type:text;not null" json:"message"`        // Error message.
	StackTrace  string `gorm:"type:text" json:"stack_trace,omitempty"`   // Stack trace.
	Source      string `gorm:"type:text" json:"source,omitempty"`        // Source component.
	ErrorType   string `gorm:"type:text" json:"error_type,omitempty"`    // Exception or error class.
	Severity    string `gorm:"type:text;not null;index" json:"severity"` // Low, Medium, High or Critical.
	Status      string `gorm:"type:text;not null;index" json:"status"`   // Open or Resolved.
	Environment string `gorm:"type:text" json:"environment,omitempty"`   // Deployment environment.
	UserAgent   string `gorm:"type:text" json:"user_agent,omitempty"`    // Client user agent.
	IPAddress   string `gorm:"type:text" json:"ip_address,omitempty"`    // Client IP address.
	HTTPMethod  string `gorm:"type:text" json:"http_method,omitempty"`   // Request method.
	APIEndpoint string `gorm:"type:text" json:"api_endpoint,omitempty"`  // Request path.

	Metadata JSONText `json:"metadata,omitempty"` // Arbitrary structured context.

	CreatedAt  time.Time  `gorm:"not null;autoCreateTime;index" json:"created_at"` // Creation timestamp.
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`                           // Resolution timestamp.
}

// NormalizeSeverity maps free-form severities onto the four stored levels.
// Unknown or empty values become Medium.
func NormalizeSeverity(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "critical", "fatal":
		return SeverityCritical
	case "high", "error":
		return SeverityHigh
	case "low", "info", "debug":
		return SeverityLow
	default:
		return SeverityMedium
	}
}
