// Package migration runs the schema's gormigrate migration log, so any
// future change to a table beyond what AutoMigrate can express safely
// (renames, backfills, drops) has a single ordered place to live.
package migration

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/speakeasy-rtc/speakeasy/internal/db/models"
)

// Migrate runs every migration in order, creating or updating tables as
// needed. The initial migration AutoMigrates every model Speakeasy defines;
// later migrations append to this slice rather than editing it in place.
func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "202607300001",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(
					&models.User{},
					&models.Identity{},
					&models.Channel{},
					&models.Ban{},
					&models.Group{},
					&models.GroupMembership{},
					&models.PermissionGrant{},
					&models.GroupKeyRecord{},
					&models.ChatMessage{},
					&models.FileMetadata{},
					&models.AuditEntry{},
					&models.ServerSettings{},
				)
			},
			Rollback: func(tx *gorm.DB) error {
				return nil
			},
		},
	})
	return m.Migrate()
}
