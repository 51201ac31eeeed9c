package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the profile record of one wallet address.
type User struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"-"`
	Address string    `gorm:"uniqueIndex;not null" json:"address"`

	DisplayID *string `gorm:"column:display_id" json:"id,omitempty"`
	Image     *string `json:"image,omitempty"`
	X         *string `gorm:"column:x_handle" json:"x,omitempty"`

	// NULL for most users; unique only among rows that have one
	Email             *string `gorm:"uniqueIndex:idx_users_email,where:email IS NOT NULL" json:"email,omitempty"`
	IsVerified        bool    `gorm:"not null;default:false" json:"isVerified"`
	VerificationToken *string `json:"-"`

	// session token presented at registration
	Token string `gorm:"not null" json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// ProfileUpdate carries the fields of POST /update. Empty strings mean
// "leave unchanged"; there is no way to clear a field.
type ProfileUpdate struct {
	Name  string
	Email string
	X     string
	Image string
}

// Apply merges the non-empty fields into u. It reports whether the email
// changed, in which case any previous verification no longer applies.
func (p ProfileUpdate) Apply(u *User) (emailChanged bool) {
	if p.Name != "" {
		u.DisplayID = &p.Name
	}
	if p.X != "" {
		u.X = &p.X
	}
	if p.Image != "" {
		u.Image = &p.Image
	}
	if p.Email != "" && (u.Email == nil || *u.Email != p.Email) {
		u.Email = &p.Email
		u.IsVerified = false
		u.VerificationToken = nil
		emailChanged = true
	}
	return emailChanged
}

func (p ProfileUpdate) Empty() bool {
	return p.Name == "" && p.Email == "" && p.X == "" && p.Image == ""
}
