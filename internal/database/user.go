package database

import (
	"context"
	"errors"

	"github.com/thereayou/abstrio/internal/apperror"
	"github.com/thereayou/abstrio/internal/models"
	"github.com/thereayou/abstrio/pkg/wallet"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (d *Database) FindUserByAddress(ctx context.Context, address string) (*models.User, error) {
	user := models.User{}
	err := d.db.WithContext(ctx).First(&user, "address = ?", wallet.NormalizeAddress(address)).Error
	if err != nil {
		return nil, notFoundOr(err, "user not found")
	}
	return &user, nil
}

func (d *Database) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user := models.User{}
	if err := d.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, notFoundOr(err, "user not found")
	}
	return &user, nil
}

// RegisterUser inserts a record for address unless one exists. The insert and
// the existence check are one statement, so concurrent calls for the same
// address leave exactly one row; created tells the caller which one won.
func (d *Database) RegisterUser(ctx context.Context, address, token string) (*models.User, bool, error) {
	address = wallet.NormalizeAddress(address)
	user := &models.User{Address: address, Token: token}

	res := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "address"}}, DoNothing: true}).
		Create(user)
	if res.Error != nil {
		return nil, false, apperror.Internal("failed to register user", res.Error)
	}

	stored, err := d.FindUserByAddress(ctx, address)
	if err != nil {
		return nil, false, err
	}
	return stored, res.RowsAffected == 1, nil
}

func (d *Database) UpdateProfile(ctx context.Context, address string, upd models.ProfileUpdate) (*models.User, error) {
	var user models.User
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockByAddress(tx, address, &user); err != nil {
			return err
		}
		upd.Apply(&user)
		return tx.Save(&user).Error
	})
	if err != nil {
		return nil, translate(err, "failed to update user")
	}
	return &user, nil
}

// MarkEmailPending attaches email to the address's record and stores the
// verification token that must come back through MarkEmailVerified. The row
// stays locked from the "already verified" check until the write.
func (d *Database) MarkEmailPending(ctx context.Context, address, email, verificationToken string) (*models.User, error) {
	var user models.User
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockByAddress(tx, address, &user); err != nil {
			return err
		}
		if user.IsVerified && user.Email != nil && *user.Email == email {
			return apperror.Conflict("email already verified")
		}

		var holders int64
		if err := tx.Model(&models.User{}).
			Where("email = ? AND address <> ?", email, user.Address).
			Count(&holders).Error; err != nil {
			return err
		}
		if holders > 0 {
			return apperror.Conflict("email already exists")
		}

		user.Email = &email
		user.IsVerified = false
		user.VerificationToken = &verificationToken
		return tx.Save(&user).Error
	})
	if err != nil {
		return nil, translate(err, "failed to start email verification")
	}
	return &user, nil
}

// MarkEmailVerified consumes verificationToken. Only the token stored by the
// latest MarkEmailPending for email is accepted, and only once.
func (d *Database) MarkEmailVerified(ctx context.Context, email, verificationToken string) (*models.User, error) {
	res := d.db.WithContext(ctx).Model(&models.User{}).
		Where("email = ? AND verification_token = ?", email, verificationToken).
		Updates(map[string]any{"is_verified": true, "verification_token": nil})
	if res.Error != nil {
		return nil, apperror.Internal("failed to verify email", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperror.InvalidToken("invalid token")
	}
	return d.FindUserByEmail(ctx, email)
}

func lockByAddress(tx *gorm.DB, address string, user *models.User) error {
	if err := selectForUpdate(tx, address, user).Error; err != nil {
		return notFoundOr(err, "user not found")
	}
	return nil
}

// selectForUpdate loads the address's row with SELECT ... FOR UPDATE.
func selectForUpdate(tx *gorm.DB, address string, user *models.User) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(user, "address = ?", wallet.NormalizeAddress(address))
}

func notFoundOr(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound(msg)
	}
	return apperror.Internal("database error", err)
}

func translate(err error, msg string) error {
	var appErr *apperror.Error
	switch {
	case errors.As(err, &appErr):
		return err
	case isUniqueViolation(err):
		return apperror.Wrap(apperror.KindConflict, "email already exists", err)
	default:
		return apperror.Internal(msg, err)
	}
}
