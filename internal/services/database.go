package services

import (
	"context"

	"github.com/thereayou/abstrio/internal/models"
)

// UserStore is implemented by database.Database and database.MemoryStore.
type UserStore interface {
	FindUserByAddress(ctx context.Context, address string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	// RegisterUser is find-or-create; created is false when the address
	// already had a record.
	RegisterUser(ctx context.Context, address, token string) (user *models.User, created bool, err error)
	UpdateProfile(ctx context.Context, address string, upd models.ProfileUpdate) (*models.User, error)
	MarkEmailPending(ctx context.Context, address, email, verificationToken string) (*models.User, error)
	MarkEmailVerified(ctx context.Context, email, verificationToken string) (*models.User, error)
}
