package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/router-for-me/ErrorMonitorBusiness/internal/db"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/models"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/security"
	"gorm.io/gorm"
)

// ApplicationStore manages monitored applications and their ingestion keys.
type ApplicationStore struct {
	db *gorm.DB
}

// NewApplicationStore constructs an ApplicationStore.
func NewApplicationStore(conn *gorm.DB) *ApplicationStore {
	return &ApplicationStore{db: conn}
}

// CreateApplicationInput describes a new application.
type CreateApplicationInput struct {
	Name        string
	Description string
	Technology  string
	Version     string
	BaseURL     string
	CreatedBy   uint64
}

// Create inserts an application and returns it with its plaintext API key.
// The key is only available here; the table keeps its hash.
func (s *ApplicationStore) Create(ctx context.Context, in CreateApplicationInput) (*models.Application, string, error) {
	if s == nil || s.db == nil {
		return nil, "", ErrNotInitialized
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, "", fmt.Errorf("application store: name is required")
	}
	key, hash, errKey := security.GenerateAPIKey()
	if errKey != nil {
		return nil, "", fmt.Errorf("application store: generate api key: %w", errKey)
	}
	now := time.Now().UTC()
	app := models.Application{
		Name:         name,
		Description:  strings.TrimSpace(in.Description),
		Technology:   strings.TrimSpace(in.Technology),
		Version:      strings.TrimSpace(in.Version),
		BaseURL:      strings.TrimSpace(in.BaseURL),
		APIKeyHash:   hash,
		APIKeyPrefix: security.APIKeyDisplayPrefix(key),
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if in.CreatedBy != 0 {
		createdBy := in.CreatedBy
		app.CreatedBy = &createdBy
	}
	if errCreate := s.db.WithContext(ctx).Create(&app).Error; errCreate != nil {
		if db.IsUniqueViolation(errCreate) {
			return nil, "", ErrDuplicate
		}
		return nil, "", fmt.Errorf("application store: create: %w", errCreate)
	}
	return &app, key, nil
}

// Get returns the application with id.
func (s *ApplicationStore) Get(ctx context.Context, id uint64) (*models.Application, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}
	var app models.Application
	if errFind := s.db.WithContext(ctx).Take(&app, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("application store: get: %w", errFind)
	}
	return &app, nil
}

// FindByAPIKey resolves an ingestion key to its application.
func (s *ApplicationStore) FindByAPIKey(ctx context.Context, key string) (*models.Application, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrNotFound
	}
	return findApplicationByKeyHash(s.db.WithContext(ctx), security.HashAPIKey(key))
}

func findApplicationByKeyHash(conn *gorm.DB, hash string) (*models.Application, error) {
	var app models.Application
	if errFind := conn.Where("api_key_hash = ?", hash).Take(&app).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("application store: find by key: %w", errFind)
	}
	return &app, nil
}

// List returns applications ordered by name.
func (s *ApplicationStore) List(ctx context.Context, search string) ([]models.Application, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}
	q := s.db.WithContext(ctx).Model(&models.Application{})
	if search = strings.TrimSpace(search); search != "" {
		q = q.Where(db.CaseInsensitiveLikeExpr(s.db, "name"), db.NormalizeLikePattern(s.db, "%"+search+"%"))
	}
	var rows []models.Application
	if errFind := q.Order("name ASC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("application store: list: %w", errFind)
	}
	return rows, nil
}

// SetPaused pauses or resumes ingestion for an application.
func (s *ApplicationStore) SetPaused(ctx context.Context, id uint64, paused bool) error {
	return s.updateColumn(ctx, id, "paused", paused)
}

// SetActive enables or disables an application.
func (s *ApplicationStore) SetActive(ctx context.Context, id uint64, active bool) error {
	return s.updateColumn(ctx, id, "active", active)
}

func (s *ApplicationStore) updateColumn(ctx context.Context, id uint64, column string, value any) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}
	res := s.db.WithContext(ctx).Model(&models.Application{}).Where("id = ?", id).Updates(map[string]any{
		column:       value,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return fmt.Errorf("application store: update %s: %w", column, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
