// Package models defines the gorm-backed persistence schema for
// Speakeasy's storage layer: users, channels, bans, permissions, identities,
// group-key ciphertexts, chat messages, file metadata, and audit entries.
package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
)

// User is a registered account (§3 Data Model).
type User struct {
	ID            identifiers.UserID `json:"id" gorm:"primaryKey;type:uuid"`
	Name          string             `json:"name" gorm:"uniqueIndex"`
	PasswordHash  string             `json:"-"`
	Active        bool               `json:"active" gorm:"default:true"`
	MustChangePw  bool               `json:"must_change_pw"`
	LastLoginAt   *time.Time         `json:"last_login,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"-"`
	DeletedAt     gorm.DeletedAt     `json:"-" gorm:"index"`
}

func (User) TableName() string { return "users" }

// BeforeCreate mints a random ID if one wasn't already assigned.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID.IsNil() {
		u.ID = identifiers.NewUserID()
	}
	return nil
}

// Identity is a user's long-term Ed25519 key pair; only the public half is
// stored server-side (§3).
type Identity struct {
	UserID    identifiers.UserID `json:"user_id" gorm:"primaryKey;type:uuid"`
	PublicKey []byte             `json:"public_key"`
	CreatedAt time.Time          `json:"created_at"`
}

func (Identity) TableName() string { return "identities" }
