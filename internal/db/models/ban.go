package models

import (
	"time"

	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
)

// Ban is a server-wide ban on a user and/or IP address (§3). At least one
// of UserID or IP must be set; Active() reports whether it currently
// applies.
type Ban struct {
	ID        uint64              `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID    *identifiers.UserID `json:"user_id,omitempty" gorm:"type:uuid;index"`
	IP        string              `json:"ip,omitempty" gorm:"index"`
	Reason    string              `json:"reason"`
	BannedBy  *identifiers.UserID `json:"banned_by,omitempty" gorm:"type:uuid"`
	ExpiresAt *time.Time          `json:"expires_at,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

func (Ban) TableName() string { return "bans" }

// Active reports whether the ban is currently in effect: it never
// expires, or its expiry is still in the future.
func (b Ban) Active(now time.Time) bool {
	return b.ExpiresAt == nil || b.ExpiresAt.After(now)
}
