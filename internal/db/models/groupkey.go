package models

import (
	"time"

	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
)

// GroupKeyRecord persists a per-recipient wrapped copy of a channel's
// group key for a given epoch, so a recipient who reconnects (without
// having been present for the original key-update broadcast) can still
// retrieve it (§4.5).
type GroupKeyRecord struct {
	ID            uint64                `json:"id" gorm:"primaryKey;autoIncrement"`
	ChannelID     identifiers.ChannelID `json:"channel_id" gorm:"type:uuid;index"`
	Epoch         uint32                `json:"epoch"`
	RecipientUser identifiers.UserID    `json:"recipient_user" gorm:"type:uuid;index"`
	EphemeralPub  []byte                `json:"ephemeral_pub"`
	Wrapped       []byte                `json:"wrapped"`
	CreatedAt     time.Time             `json:"created_at"`
}

func (GroupKeyRecord) TableName() string { return "group_key_records" }
