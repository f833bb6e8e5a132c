package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/router-for-me/ErrorMonitorBusiness/internal/mail"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/models"
	internalsettings "github.com/router-for-me/ErrorMonitorBusiness/internal/settings"
	"gorm.io/gorm"
)

// AlertInput describes an operator-created alert. A zero ApplicationID makes it system-wide.
type AlertInput struct {
	ApplicationID uint64
	Name          string
	Description   string
	Condition     string
	Recipients    string
	AlertLevel    string
	Message       string
	CreatedBy     uint64
}

// AlertFilter narrows List.
type AlertFilter struct {
	ApplicationID uint64
	Resolved      *bool
	Page          Page
}

// AlertStore manages alerts.
type AlertStore struct {
	db        *gorm.DB
	publisher publisher
	nowFn     func() time.Time
}

// NewAlertStore constructs an AlertStore. notifier and mailer may be nil.
func NewAlertStore(conn *gorm.DB, notifier Notifier, mailer mail.Sender) *AlertStore {
	return &AlertStore{
		db:        conn,
		publisher: publisher{notifier: notifier, mailer: mailer},
		nowFn:     time.Now,
	}
}

// Create stores a manual alert and notifies subscribers after commit.
func (s *AlertStore) Create(ctx context.Context, in AlertInput) (*models.Alert, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	level := strings.ToUpper(models.NormalizeSeverity(in.AlertLevel))
	condition := strings.TrimSpace(in.Condition)
	if condition == "" {
		condition = "Manual alert"
	}
	recipients := strings.TrimSpace(in.Recipients)
	if recipients == "" {
		recipients = internalsettings.StringValue(internalsettings.AlertRecipientsKey, "")
	}
	alert := &models.Alert{
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Condition:   condition,
		Recipients:  recipients,
		AlertType:   models.AlertTypeEmail,
		AlertLevel:  level,
		Message:     strings.TrimSpace(in.Message),
		Active:      true,
		CreatedAt:   s.nowFn().UTC(),
	}
	if alert.Message == "" {
		alert.Message = alert.Description
	}
	if in.CreatedBy != 0 {
		createdBy := in.CreatedBy
		alert.CreatedBy = &createdBy
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.ApplicationID != 0 {
			var count int64
			if errCount := tx.Model(&models.Application{}).Where("id = ?", in.ApplicationID).Count(&count).Error; errCount != nil {
				return errCount
			}
			if count == 0 {
				return ErrNotFound
			}
			appID := in.ApplicationID
			alert.ApplicationID = &appID
		}
		return tx.Create(alert).Error
	})
	if errTx != nil {
		if errors.Is(errTx, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("alert store: create: %w", errTx)
	}

	s.publisher.alertTriggered(alert)
	return alert, nil
}

// List returns alerts matching filter, newest first.
func (s *AlertStore) List(ctx context.Context, filter AlertFilter) ([]models.Alert, int64, error) {
	if s == nil || s.db == nil {
		return nil, 0, ErrNotInitialized
	}
	q := s.db.WithContext(ctx).Model(&models.Alert{})
	if filter.ApplicationID != 0 {
		q = q.Where("application_id = ?", filter.ApplicationID)
	}
	if filter.Resolved != nil {
		q = q.Where("resolved = ?", *filter.Resolved)
	}
	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		return nil, 0, fmt.Errorf("alert store: count: %w", errCount)
	}
	offset, limit := filter.Page.normalize()
	var rows []models.Alert
	if errFind := q.Order("created_at DESC, id DESC").Offset(offset).Limit(limit).Find(&rows).Error; errFind != nil {
		return nil, 0, fmt.Errorf("alert store: list: %w", errFind)
	}
	return rows, total, nil
}

// Resolve marks an alert resolved.
func (s *AlertStore) Resolve(ctx context.Context, id uint64) (*models.Alert, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}
	var alert models.Alert
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errFind := tx.Take(&alert, id).Error; errFind != nil {
			return errFind
		}
		if alert.Resolved {
			return nil
		}
		now := s.nowFn().UTC()
		alert.Resolved = true
		alert.ResolvedAt = &now
		return tx.Model(&models.Alert{}).Where("id = ?", id).Updates(map[string]any{
			"resolved":    true,
			"resolved_at": now,
		}).Error
	})
	if errTx != nil {
		if errors.Is(errTx, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("alert store: resolve: %w", errTx)
	}
	return &alert, nil
}
