// Package store persists users, applications, error logs, alerts and the audit trail with GORM.
package store

import (
	"errors"

	"github.com/router-for-me/ErrorMonitorBusiness/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("store: record not found")
	// ErrDuplicate is returned when a unique column already holds the value.
	ErrDuplicate = errors.New("store: duplicate record")
	// ErrNotInitialized is returned by stores built without a connection.
	ErrNotInitialized = errors.New("store: not initialized")
)

// Notifier receives committed error logs and alerts.
type Notifier interface {
	OnErrorLogged(applicationID uint64, record *models.ErrorLog)
	OnAlertTriggered(alert *models.Alert)
}

// Page bounds list queries.
type Page struct {
	Page     int
	PageSize int
}

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// normalize clamps page values to sane bounds.
func (p Page) normalize() (offset, limit int) {
	limit = p.PageSize
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	page := p.Page
	if page <= 0 {
		page = 1
	}
	return (page - 1) * limit, limit
}
