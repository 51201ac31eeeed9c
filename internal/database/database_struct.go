package database

import (
	"context"

	"github.com/thereayou/abstrio/internal/models"
	"gorm.io/gorm"
)

// Database is the Postgres-backed user store.
type Database struct {
	db *gorm.DB
}

// NewDatabase wraps an already opened gorm handle. It does not touch the
// schema; call Migrate for that.
func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// Migrate creates or updates the users table with its unique address index
// and the partial unique index on email.
func (d *Database) Migrate(ctx context.Context) error {
	return d.db.WithContext(ctx).AutoMigrate(&models.User{})
}
