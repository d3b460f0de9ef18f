package models

import (
	"time"

	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
)

// ChatMessage is one persisted text-channel message.
type ChatMessage struct {
	ID        uint64                `json:"id" gorm:"primaryKey;autoIncrement"`
	ChannelID identifiers.ChannelID `json:"channel_id" gorm:"type:uuid;index"`
	SenderID  identifiers.UserID    `json:"sender_id" gorm:"type:uuid;index"`
	Body      string                `json:"body"`
	SentAt    time.Time             `json:"sent_at"`
}

func (ChatMessage) TableName() string { return "chat_messages" }

// FileMetadata records an uploaded file's storage-external location and
// ownership; the blob itself lives in an external object store (§1 scope).
type FileMetadata struct {
	ID         uint64                `json:"id" gorm:"primaryKey;autoIncrement"`
	ChannelID  identifiers.ChannelID `json:"channel_id" gorm:"type:uuid;index"`
	UploaderID identifiers.UserID    `json:"uploader_id" gorm:"type:uuid;index"`
	Name       string                `json:"name"`
	SizeBytes  int64                 `json:"size_bytes"`
	StorageKey string                `json:"storage_key"`
	UploadedAt time.Time             `json:"uploaded_at"`
}

func (FileMetadata) TableName() string { return "file_metadata" }

// AuditEntry is an immutable record of a state-changing action, written
// by handlers on both success and permission-deny (§8 scenario 5).
type AuditEntry struct {
	ID        uint64                 `json:"id" gorm:"primaryKey;autoIncrement"`
	ActorID   identifiers.UserID     `json:"actor_id" gorm:"type:uuid;index"`
	Action    string                 `json:"action"`
	ChannelID *identifiers.ChannelID `json:"channel_id,omitempty" gorm:"type:uuid"`
	Detail    string                 `json:"detail"`
	Allowed   bool                   `json:"allowed"`
	CreatedAt time.Time              `json:"created_at"`
}

func (AuditEntry) TableName() string { return "audit_entries" }
