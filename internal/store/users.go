package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/router-for-me/ErrorMonitorBusiness/internal/auth"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/db"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/models"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/security"
	"gorm.io/gorm"
)

// UserStore reads and writes operator accounts.
type UserStore struct {
	db *gorm.DB
}

// NewUserStore constructs a UserStore.
func NewUserStore(conn *gorm.DB) *UserStore {
	return &UserStore{db: conn}
}

// FindByUsername implements auth.IdentityStore.
func (s *UserStore) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}
	var user models.User
	errFind := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).Take(&user).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, auth.ErrUserNotFound
		}
		return nil, fmt.Errorf("user store: find by username: %w", errFind)
	}
	return &user, nil
}

// FindByID returns the user with id.
func (s *UserStore) FindByID(ctx context.Context, id uint64) (*models.User, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}
	var user models.User
	if errFind := s.db.WithContext(ctx).Take(&user, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("user store: find by id: %w", errFind)
	}
	return &user, nil
}

// TouchLastLogin records a successful password check.
func (s *UserStore) TouchLastLogin(ctx context.Context, userID uint64, at time.Time) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}
	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("last_login_at", at.UTC()).Error
}

// CreateUserInput describes a new local account.
type CreateUserInput struct {
	Username         string
	Email            string
	Password         string
	FirstName        string
	LastName         string
	Role             security.Role
	TwoFactorEnabled bool
}

// Create hashes the password and inserts a local user.
func (s *UserStore) Create(ctx context.Context, in CreateUserInput) (*models.User, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	if username == "" || email == "" || in.Password == "" {
		return nil, fmt.Errorf("user store: username, email and password are required")
	}
	if !in.Role.Valid() {
		return nil, fmt.Errorf("user store: invalid role")
	}
	hash, errHash := security.HashPassword(in.Password)
	if errHash != nil {
		return nil, fmt.Errorf("user store: hash password: %w", errHash)
	}
	now := time.Now().UTC()
	user := models.User{
		Username:         username,
		Email:            email,
		Password:         &hash,
		FirstName:        strings.TrimSpace(in.FirstName),
		LastName:         strings.TrimSpace(in.LastName),
		AuthProvider:     models.AuthProviderLocal,
		Role:             in.Role.String(),
		Active:           true,
		TwoFactorEnabled: in.TwoFactorEnabled,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if errCreate := s.db.WithContext(ctx).Create(&user).Error; errCreate != nil {
		if db.IsUniqueViolation(errCreate) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("user store: create: %w", errCreate)
	}
	return &user, nil
}

// List returns users matching search on username or email, newest first.
func (s *UserStore) List(ctx context.Context, search string, page Page) ([]models.User, int64, error) {
	if s == nil || s.db == nil {
		return nil, 0, ErrNotInitialized
	}
	q := s.db.WithContext(ctx).Model(&models.User{})
	if search = strings.TrimSpace(search); search != "" {
		pattern := db.NormalizeLikePattern(s.db, "%"+search+"%")
		q = q.Where(db.CaseInsensitiveLikeExpr(s.db, "username")+" OR "+db.CaseInsensitiveLikeExpr(s.db, "email"), pattern, pattern)
	}
	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		return nil, 0, fmt.Errorf("user store: count: %w", errCount)
	}
	offset, limit := page.normalize()
	var rows []models.User
	if errFind := q.Order("created_at DESC, id DESC").Offset(offset).Limit(limit).Find(&rows).Error; errFind != nil {
		return nil, 0, fmt.Errorf("user store: list: %w", errFind)
	}
	return rows, total, nil
}

// SetActive enables or disables sign-in for a user.
func (s *UserStore) SetActive(ctx context.Context, id uint64, active bool) error {
	return s.updateColumn(ctx, id, "active", active)
}

// SetTwoFactor toggles the per-user one-time code requirement.
func (s *UserStore) SetTwoFactor(ctx context.Context, id uint64, enabled bool) error {
	return s.updateColumn(ctx, id, "two_factor_enabled", enabled)
}

// SetRole changes a user's role.
func (s *UserStore) SetRole(ctx context.Context, id uint64, role security.Role) error {
	if !role.Valid() {
		return fmt.Errorf("user store: invalid role")
	}
	return s.updateColumn(ctx, id, "role", role.String())
}

func (s *UserStore) updateColumn(ctx context.Context, id uint64, column string, value any) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(map[string]any{
		column:       value,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return fmt.Errorf("user store: update %s: %w", column, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByRole counts users holding role.
func (s *UserStore) CountByRole(ctx context.Context, role security.Role) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrNotInitialized
	}
	var count int64
	if errCount := s.db.WithContext(ctx).Model(&models.User{}).Where("role = ?", role.String()).Count(&count).Error; errCount != nil {
		return 0, fmt.Errorf("user store: count by role: %w", errCount)
	}
	return count, nil
}
