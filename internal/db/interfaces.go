package db

import (
	"time"

	"github.com/speakeasy-rtc/speakeasy/internal/db/models"
	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
)

// UserRepo persists accounts. Consumed by the signaling core's auth
// handlers (§6 External Interfaces).
type UserRepo interface {
	FindByID(id identifiers.UserID) (models.User, error)
	FindByName(name string) (models.User, error)
	Create(user *models.User) error
	UpdatePasswordHash(id identifiers.UserID, hash string, mustChangePw bool) error
	UpdateLastLogin(id identifiers.UserID, at time.Time) error
	Count() (int64, error)
}

// ChannelRepo persists the channel tree.
type ChannelRepo interface {
	FindByID(id identifiers.ChannelID) (models.Channel, error)
	FindDefault() (models.Channel, error)
	List() ([]models.Channel, error)
	Create(ch *models.Channel) error
	Delete(id identifiers.ChannelID) error
}

// BanRepo persists and queries bans.
type BanRepo interface {
	IsBanned(user *identifiers.UserID, ip string, now time.Time) (models.Ban, bool, error)
	Create(ban *models.Ban) error
	List() ([]models.Ban, error)
}

// ChatRepo persists text-channel messages.
type ChatRepo interface {
	SaveMessage(msg *models.ChatMessage) error
	History(channel identifiers.ChannelID, limit int) ([]models.ChatMessage, error)
}

// FileRepo persists uploaded-file metadata; the blob itself lives in an
// external object store (§1 Non-goals).
type FileRepo interface {
	SaveMetadata(f *models.FileMetadata) error
	Get(id uint64) (models.FileMetadata, error)
}

// AuditRepo persists an immutable log of state-changing actions,
// including denied attempts (§8 scenario 5).
type AuditRepo interface {
	Write(entry *models.AuditEntry) error
}

// GroupKeyRepo persists per-recipient wrapped group-key deliveries so a
// reconnecting client can retrieve a key it missed the broadcast for.
type GroupKeyRepo interface {
	SaveWrapped(rec *models.GroupKeyRecord) error
	FindWrapped(channel identifiers.ChannelID, epoch uint32, user identifiers.UserID) (models.GroupKeyRecord, bool, error)
}

// ServerRepo persists the single server-settings row edited by ServerEdit.
type ServerRepo interface {
	Get() (models.ServerSettings, error)
	Update(settings models.ServerSettings) error
}

// IdentityRepo persists the public half of a user's long-term E2E
// identity key pair (§3 Identity).
type IdentityRepo interface {
	Upsert(identity *models.Identity) error
	FindByUser(user identifiers.UserID) (models.Identity, bool, error)
}
