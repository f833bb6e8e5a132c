package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/router-for-me/ErrorMonitorBusiness/internal/mail"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/models"
	internalsettings "github.com/router-for-me/ErrorMonitorBusiness/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	// ErrApplicationInactive rejects ingestion for disabled applications.
	ErrApplicationInactive = errors.New("store: application inactive")
	// ErrInvalidInput is returned for records missing required fields.
	ErrInvalidInput = errors.New("store: invalid input")
)

const defaultEnvironment = "PRODUCTION"

// ErrorInput is an error reported by an application.
type ErrorInput struct {
	Message     string
	StackTrace  string
	Source      string
	ErrorType   string
	Severity    string
	Environment string
	UserAgent   string
	IPAddress   string
	HTTPMethod  string
	APIEndpoint string
	Metadata    json.RawMessage
}

// IngestResult reports what Ingest stored. Ignored is set for paused applications.
type IngestResult struct {
	Ignored     bool
	Application *models.Application
	ErrorLog    *models.ErrorLog
	Alert       *models.Alert
}

// ErrorFilter narrows ListErrors.
type ErrorFilter struct {
	ApplicationID uint64
	Status        string
	Severity      string
	Page          Page
}

// ErrorLogStore records reported errors and raises their alerts.
type ErrorLogStore struct {
	db        *gorm.DB
	publisher publisher
	nowFn     func() time.Time
}

// NewErrorLogStore constructs an ErrorLogStore. notifier and mailer may be nil.
func NewErrorLogStore(conn *gorm.DB, notifier Notifier, mailer mail.Sender) *ErrorLogStore {
	return &ErrorLogStore{
		db:        conn,
		publisher: publisher{notifier: notifier, mailer: mailer},
		nowFn:     time.Now,
	}
}

// Ingest stores an error and its automatic alert in one transaction and
// notifies subscribers once the transaction has committed.
func (s *ErrorLogStore) Ingest(ctx context.Context, apiKey string, in ErrorInput) (IngestResult, error) {
	if s == nil || s.db == nil {
		return IngestResult{}, ErrNotInitialized
	}
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return IngestResult{}, fmt.Errorf("%w: message is required", ErrInvalidInput)
	}
	if len(in.Metadata) > 0 && !json.Valid(in.Metadata) {
		return IngestResult{}, fmt.Errorf("%w: metadata must be JSON", ErrInvalidInput)
	}

	app, errApp := (&ApplicationStore{db: s.db}).FindByAPIKey(ctx, apiKey)
	if errApp != nil {
		return IngestResult{}, errApp
	}
	if !app.Active {
		return IngestResult{}, ErrApplicationInactive
	}
	if app.Paused {
		log.WithField("application_id", app.ID).Debug("store: application paused, error ignored")
		return IngestResult{Ignored: true, Application: app}, nil
	}

	now := s.nowFn().UTC()
	severity := models.NormalizeSeverity(in.Severity)
	environment := strings.TrimSpace(in.Environment)
	if environment == "" {
		environment = defaultEnvironment
	}
	record := &models.ErrorLog{
		ApplicationID: app.ID,
		Message:       message,
		StackTrace:    in.StackTrace,
		Source:        strings.TrimSpace(in.Source),
		ErrorType:     strings.TrimSpace(in.ErrorType),
		Severity:      severity,
		Status:        models.ErrorStatusOpen,
		Environment:   environment,
		UserAgent:     strings.TrimSpace(in.UserAgent),
		IPAddress:     strings.TrimSpace(in.IPAddress),
		HTTPMethod:    strings.ToUpper(strings.TrimSpace(in.HTTPMethod)),
		APIEndpoint:   strings.TrimSpace(in.APIEndpoint),
		CreatedAt:     now,
	}
	if len(in.Metadata) > 0 {
		record.Metadata = models.JSONText(in.Metadata)
	}
	appID := app.ID
	alert := &models.Alert{
		ApplicationID: &appID,
		Name:          app.Name,
		Description:   message,
		Condition:     severity + " level alert",
		Recipients:    internalsettings.StringValue(internalsettings.AlertRecipientsKey, ""),
		AlertType:     models.AlertTypeEmail,
		AlertLevel:    strings.ToUpper(severity),
		Message:       message,
		Active:        true,
		CreatedAt:     now,
	}
	retention := internalsettings.IntValue(internalsettings.ErrorRetentionPerAppKey, internalsettings.DefaultErrorRetentionPerApp)

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errCreate := tx.Create(record).Error; errCreate != nil {
			return fmt.Errorf("create error log: %w", errCreate)
		}
		errorLogID := record.ID
		alert.ErrorLogID = &errorLogID
		if errCreate := tx.Create(alert).Error; errCreate != nil {
			return fmt.Errorf("create alert: %w", errCreate)
		}
		return trimResolvedErrors(tx, app.ID, retention)
	})
	if errTx != nil {
		return IngestResult{}, fmt.Errorf("error log store: ingest: %w", errTx)
	}

	s.publisher.errorLogged(app.ID, record)
	s.publisher.alertTriggered(alert)
	return IngestResult{Application: app, ErrorLog: record, Alert: alert}, nil
}

// trimResolvedErrors deletes the oldest resolved errors once an application exceeds retention.
func trimResolvedErrors(tx *gorm.DB, applicationID uint64, retention int) error {
	if retention <= 0 {
		return nil
	}
	var total int64
	if errCount := tx.Model(&models.ErrorLog{}).Where("application_id = ?", applicationID).Count(&total).Error; errCount != nil {
		return fmt.Errorf("count error logs: %w", errCount)
	}
	excess := int(total) - retention
	if excess <= 0 {
		return nil
	}
	var ids []uint64
	if errFind := tx.Model(&models.ErrorLog{}).
		Where("application_id = ? AND status = ?", applicationID, models.ErrorStatusResolved).
		Order("resolved_at ASC, id ASC").
		Limit(excess).
		Pluck("id", &ids).Error; errFind != nil {
		return fmt.Errorf("select expired error logs: %w", errFind)
	}
	if len(ids) == 0 {
		return nil
	}
	if errUnlink := tx.Model(&models.Alert{}).Where("error_log_id IN ?", ids).Update("error_log_id", nil).Error; errUnlink != nil {
		return fmt.Errorf("unlink alerts: %w", errUnlink)
	}
	if errDelete := tx.Where("id IN ?", ids).Delete(&models.ErrorLog{}).Error; errDelete != nil {
		return fmt.Errorf("delete expired error logs: %w", errDelete)
	}
	return nil
}

// List returns error logs matching filter, newest first.
func (s *ErrorLogStore) List(ctx context.Context, filter ErrorFilter) ([]models.ErrorLog, int64, error) {
	if s == nil || s.db == nil {
		return nil, 0, ErrNotInitialized
	}
	q := s.db.WithContext(ctx).Model(&models.ErrorLog{})
	if filter.ApplicationID != 0 {
		q = q.Where("application_id = ?", filter.ApplicationID)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		q = q.Where("status = ?", status)
	}
	if severity := strings.TrimSpace(filter.Severity); severity != "" {
		q = q.Where("severity = ?", models.NormalizeSeverity(severity))
	}
	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		return nil, 0, fmt.Errorf("error log store: count: %w", errCount)
	}
	offset, limit := filter.Page.normalize()
	var rows []models.ErrorLog
	if errFind := q.Order("created_at DESC, id DESC").Offset(offset).Limit(limit).Find(&rows).Error; errFind != nil {
		return nil, 0, fmt.Errorf("error log store: list: %w", errFind)
	}
	return rows, total, nil
}

// Resolve marks an error log resolved. Resolving twice keeps the first timestamp.
func (s *ErrorLogStore) Resolve(ctx context.Context, id uint64) (*models.ErrorLog, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}
	var record models.ErrorLog
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errFind := tx.Take(&record, id).Error; errFind != nil {
			return errFind
		}
		if record.Status == models.ErrorStatusResolved {
			return nil
		}
		now := s.nowFn().UTC()
		record.Status = models.ErrorStatusResolved
		record.ResolvedAt = &now
		return tx.Model(&models.ErrorLog{}).Where("id = ?", id).Updates(map[string]any{
			"status":      record.Status,
			"resolved_at": now,
		}).Error
	})
	if errTx != nil {
		if errors.Is(errTx, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error log store: resolve: %w", errTx)
	}
	return &record, nil
}
