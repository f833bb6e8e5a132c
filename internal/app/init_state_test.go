package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/router-for-me/ErrorMonitorBusiness/internal/db"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/security"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/store"
)

func TestHasAdminInitialized(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "monitor-test.db")
	conn, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	initialized, err := HasAdminInitialized(conn)
	if err != nil {
		t.Fatalf("HasAdminInitialized: %v", err)
	}
	if initialized {
		t.Fatalf("expected initialized=false before migrate")
	}

	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	users := store.NewUserStore(conn)
	if _, errCreate := users.Create(context.Background(), store.CreateUserInput{
		Username: "dev",
		Email:    "dev@example.com",
		Password: "password",
		Role:     security.RoleDeveloper,
	}); errCreate != nil {
		t.Fatalf("create developer: %v", errCreate)
	}
	initialized, err = HasAdminInitialized(conn)
	if err != nil {
		t.Fatalf("HasAdminInitialized after migrate: %v", err)
	}
	if initialized {
		t.Fatalf("expected initialized=false without an admin")
	}

	if _, errCreate := users.Create(context.Background(), store.CreateUserInput{
		Username: "admin",
		Email:    "admin@example.com",
		Password: "password",
		Role:     security.RoleAdmin,
	}); errCreate != nil {
		t.Fatalf("create admin: %v", errCreate)
	}

	initialized, err = HasAdminInitialized(conn)
	if err != nil {
		t.Fatalf("HasAdminInitialized after seed: %v", err)
	}
	if !initialized {
		t.Fatalf("expected initialized=true after admin created")
	}
}

func TestEnsureAdmin(t *testing.T) {
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "monitor-test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	users := store.NewUserStore(conn)
	ctx := context.Background()

	t.Setenv("ADMIN_USERNAME", "")
	t.Setenv("ADMIN_PASSWORD", "")
	if errSeed := EnsureAdmin(ctx, users); errSeed != nil {
		t.Fatalf("EnsureAdmin without env: %v", errSeed)
	}
	if count, _ := users.CountByRole(ctx, security.RoleAdmin); count != 0 {
		t.Fatalf("expected no admin without env, got %d", count)
	}

	t.Setenv("ADMIN_USERNAME", "root")
	t.Setenv("ADMIN_PASSWORD", "s3cret!")
	t.Setenv("ADMIN_EMAIL", "root@example.com")
	if errSeed := EnsureAdmin(ctx, users); errSeed != nil {
		t.Fatalf("EnsureAdmin: %v", errSeed)
	}
	user, errFind := users.FindByUsername(ctx, "root")
	if errFind != nil {
		t.Fatalf("find seeded admin: %v", errFind)
	}
	if user.Role != "ADMIN" || user.Email != "root@example.com" || !security.CheckPassword(*user.Password, "s3cret!") {
		t.Fatalf("unexpected seeded admin %+v", user)
	}

	// A second run with different credentials leaves the existing admin alone.
	t.Setenv("ADMIN_USERNAME", "other")
	if errSeed := EnsureAdmin(ctx, users); errSeed != nil {
		t.Fatalf("EnsureAdmin rerun: %v", errSeed)
	}
	if count, _ := users.CountByRole(ctx, security.RoleAdmin); count != 1 {
		t.Fatalf("expected one admin, got %d", count)
	}
}
