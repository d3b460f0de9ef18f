package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
)

// ChannelType distinguishes voice channels from text-only channels.
type ChannelType string

const (
	ChannelTypeVoice ChannelType = "voice"
	ChannelTypeText  ChannelType = "text"
)

// Channel is a node in the hierarchical channel tree (§3). A channel
// cannot be its own ancestor; exactly one channel may have Default=true.
type Channel struct {
	ID          identifiers.ChannelID  `json:"id" gorm:"primaryKey;type:uuid"`
	Name        string                 `json:"name"`
	ParentID    *identifiers.ChannelID `json:"parent_id,omitempty" gorm:"type:uuid"`
	Topic       string                 `json:"topic"`
	PasswordHash string                `json:"-"`
	MaxClients  int                    `json:"max_clients"`
	Default     bool                   `json:"default"`
	SortOrder   int                    `json:"sort_order"`
	Type        ChannelType            `json:"type"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"-"`
	DeletedAt   gorm.DeletedAt         `json:"-" gorm:"index"`
}

func (Channel) TableName() string { return "channels" }

// BeforeCreate mints a random ID if one wasn't already assigned.
func (c *Channel) BeforeCreate(tx *gorm.DB) error {
	if c.ID.IsNil() {
		c.ID = identifiers.NewChannelID()
	}
	return nil
}

// HasPassword reports whether joining requires a channel password.
func (c Channel) HasPassword() bool { return c.PasswordHash != "" }
