package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/router-for-me/ErrorMonitorBusiness/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AuditEntry is one audit record to write.
type AuditEntry struct {
	UserID     uint64
	Username   string
	Action     string
	EntityType string
	EntityID   uint64
	OldValues  string
	NewValues  string
	IPAddress  string
	UserAgent  string
}

// AuditFilter narrows List.
type AuditFilter struct {
	Action     string
	EntityType string
	UserID     uint64
	Since      time.Time
	Page       Page
}

// AuditStore manages the audit trail.
type AuditStore struct {
	db    *gorm.DB
	nowFn func() time.Time
}

// NewAuditStore constructs an AuditStore.
func NewAuditStore(conn *gorm.DB) *AuditStore {
	return &AuditStore{db: conn, nowFn: time.Now}
}

// Record writes entry. Audit writes never fail the caller; errors are logged.
// A nil store is a no-op.
func (s *AuditStore) Record(ctx context.Context, entry AuditEntry) {
	if s == nil || s.db == nil {
		return
	}
	action := strings.ToUpper(strings.TrimSpace(entry.Action))
	if action == "" {
		return
	}
	row := &models.AuditLog{
		Username:   strings.TrimSpace(entry.Username),
		Action:     action,
		EntityType: strings.TrimSpace(entry.EntityType),
		OldValues:  entry.OldValues,
		NewValues:  entry.NewValues,
		IPAddress:  strings.TrimSpace(entry.IPAddress),
		UserAgent:  strings.TrimSpace(entry.UserAgent),
		CreatedAt:  s.nowFn().UTC(),
	}
	if entry.UserID != 0 {
		userID := entry.UserID
		row.UserID = &userID
	}
	if entry.EntityID != 0 {
		row.EntityID = strconv.FormatUint(entry.EntityID, 10)
	}
	if errCreate := s.db.WithContext(ctx).Create(row).Error; errCreate != nil {
		log.WithError(errCreate).WithField("action", action).Warn("audit store: record failed")
	}
}

// List returns audit rows matching filter, newest first.
func (s *AuditStore) List(ctx context.Context, filter AuditFilter) ([]models.AuditLog, int64, error) {
	if s == nil || s.db == nil {
		return nil, 0, ErrNotInitialized
	}
	q := s.db.WithContext(ctx).Model(&models.AuditLog{})
	if action := strings.ToUpper(strings.TrimSpace(filter.Action)); action != "" {
		q = q.Where("action = ?", action)
	}
	if entityType := strings.TrimSpace(filter.EntityType); entityType != "" {
		q = q.Where("entity_type = ?", entityType)
	}
	if filter.UserID != 0 {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if !filter.Since.IsZero() {
		q = q.Where("created_at >= ?", filter.Since.UTC())
	}
	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		return nil, 0, fmt.Errorf("audit store: count: %w", errCount)
	}
	offset, limit := filter.Page.normalize()
	var rows []models.AuditLog
	if errFind := q.Order("created_at DESC, id DESC").Offset(offset).Limit(limit).Find(&rows).Error; errFind != nil {
		return nil, 0, fmt.Errorf("audit store: list: %w", errFind)
	}
	return rows, total, nil
}
