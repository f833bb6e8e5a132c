package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/router-for-me/ErrorMonitorBusiness/internal/config"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/models"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/security"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/store"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// HasAdminInitialized reports whether the system has at least one admin account.
func HasAdminInitialized(conn *gorm.DB) (bool, error) {
	if conn == nil {
		return false, fmt.Errorf("nil db")
	}
	if !conn.Migrator().HasTable(&models.User{}) {
		return false, nil
	}
	var count int64
	if errCount := conn.Model(&models.User{}).Where("role = ?", security.RoleAdmin.String()).Count(&count).Error; errCount != nil {
		return false, errCount
	}
	return count > 0, nil
}

// EnsureAdmin creates the admin named by ADMIN_USERNAME and ADMIN_PASSWORD when
// no admin account exists yet. It is a no-op when the variables are unset.
func EnsureAdmin(ctx context.Context, users *store.UserStore) error {
	seed, ok := config.LoadSeedAdmin()
	if !ok {
		return nil
	}
	count, errCount := users.CountByRole(ctx, security.RoleAdmin)
	if errCount != nil {
		return fmt.Errorf("count admins: %w", errCount)
	}
	if count > 0 {
		return nil
	}

	email := seed.Email
	if email == "" {
		email = seed.Username + "@localhost"
	}
	user, errCreate := users.Create(ctx, store.CreateUserInput{
		Username: seed.Username,
		Email:    email,
		Password: seed.Password,
		Role:     security.RoleAdmin,
	})
	if errCreate != nil {
		if errors.Is(errCreate, store.ErrDuplicate) {
			log.WithField("username", seed.Username).Warn("app: seed admin username already taken by a non-admin account")
			return nil
		}
		return fmt.Errorf("create seed admin: %w", errCreate)
	}
	log.WithFields(log.Fields{"user_id": user.ID, "username": user.Username}).Info("app: seed admin created")
	return nil
}
