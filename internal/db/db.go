// Package db wires the gorm-backed storage layer and exposes it as the
// capability interfaces the signaling core consumes (§6 External
// Interfaces): UserRepo, ChannelRepo, BanRepo, PermRepo (satisfying
// internal/permission.Store), ChatRepo, AuditRepo, GroupKeyRepo, FileRepo.
// Grounded on the teacher's internal/db/db.go driver-selection, migration,
// and seeding shape, generalized from a DMR-specific schema to Speakeasy's.
package db

import (
	"fmt"
	"log/slog"

	"github.com/glebarez/sqlite"
	gorm_seeder "github.com/kachit/gorm-seeder"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/speakeasy-rtc/speakeasy/internal/auth"
	"github.com/speakeasy-rtc/speakeasy/internal/config"
	"github.com/speakeasy-rtc/speakeasy/internal/db/migration"
	"github.com/speakeasy-rtc/speakeasy/internal/db/models"
)

// Store aggregates every repository the core consumes, backed by one gorm
// connection.
type Store struct {
	DB *gorm.DB

	Users       *UserStore
	Channels    *ChannelStore
	Bans        *BanStore
	Permissions *PermissionStore
	Chat        *ChatStore
	Files       *FileStore
	Audit       *AuditStore
	GroupKeys   *GroupKeyStore
	Server      *ServerStore
	Identities  *IdentityStore

	// JustBootstrapped is set when Open created the default admin user on
	// this call, i.e. this is a brand new deployment. The caller can use
	// it to prompt the operator to complete setup right away.
	JustBootstrapped bool
}

// Open connects to the configured database driver, migrates the schema,
// and returns a Store. It performs the first-start admin bootstrap
// (§6 Bootstrap) when the users table is empty, and seeds the singleton
// server-settings row from cfg.Server the first time it's missing.
func Open(cfg config.Config, otlpEndpoint string) (*Store, error) {
	gormDB, err := openDriver(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}

	if otlpEndpoint != "" {
		if err := gormDB.Use(otelgorm.NewPlugin()); err != nil {
			return nil, fmt.Errorf("db: trace plugin: %w", err)
		}
	}

	if err := migration.Migrate(gormDB); err != nil {
		return nil, fmt.Errorf("db: migrate: %w", err)
	}

	store := &Store{
		DB:          gormDB,
		Users:       &UserStore{db: gormDB},
		Channels:    &ChannelStore{db: gormDB},
		Bans:        &BanStore{db: gormDB},
		Permissions: &PermissionStore{db: gormDB},
		Chat:        &ChatStore{db: gormDB},
		Files:       &FileStore{db: gormDB},
		Audit:       &AuditStore{db: gormDB},
		GroupKeys:   &GroupKeyStore{db: gormDB},
		Server:      &ServerStore{db: gormDB},
		Identities:  &IdentityStore{db: gormDB},
	}

	if err := store.bootstrapAdmin(); err != nil {
		return nil, fmt.Errorf("db: bootstrap: %w", err)
	}
	if err := store.bootstrapServerSettings(cfg.Server); err != nil {
		return nil, fmt.Errorf("db: bootstrap server settings: %w", err)
	}
	if err := store.bootstrapGroups(); err != nil {
		return nil, fmt.Errorf("db: bootstrap groups: %w", err)
	}

	return store, nil
}

func openDriver(cfg config.Database) (*gorm.DB, error) {
	switch cfg.Driver {
	case config.DatabaseDriverPostgres:
		return gorm.Open(postgres.Open(cfg.URL), &gorm.Config{})
	case config.DatabaseDriverMySQL:
		return gorm.Open(mysql.Open(cfg.URL), &gorm.Config{})
	case config.DatabaseDriverSQLite:
		return gorm.Open(sqlite.Open(cfg.Database), &gorm.Config{})
	default:
		return nil, fmt.Errorf("db: unknown driver %q", cfg.Driver)
	}
}

// bootstrapAdmin creates the default admin user the first time the users
// table is empty, per §6 Bootstrap.
func (s *Store) bootstrapAdmin() error {
	var count int64
	if err := s.DB.Model(&models.User{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := auth.HashPassword("admin")
	if err != nil {
		return fmt.Errorf("hashing bootstrap admin password: %w", err)
	}

	admin := models.User{
		Name:         "admin",
		PasswordHash: hash,
		Active:       true,
		MustChangePw: true,
	}
	if err := s.DB.Create(&admin).Error; err != nil {
		return err
	}
	s.JustBootstrapped = true
	slog.Warn("bootstrapped default admin user with password 'admin' — change it immediately", "user_id", admin.ID)
	return nil
}

// bootstrapGroups seeds the default "everyone" permission group the first
// time this database is initialized, tracked by ServerSettings.HasSeeded
// so it only ever runs once per deployment.
func (s *Store) bootstrapGroups() error {
	var settings models.ServerSettings
	if err := s.DB.Where("id = ?", models.SingletonServerSettingsID).First(&settings).Error; err != nil {
		return err
	}
	if settings.HasSeeded {
		return nil
	}

	groupsSeeder := models.NewGroupsSeeder(gorm_seeder.SeederConfiguration{Rows: 1})
	seederStack := gorm_seeder.NewSeedersStack(s.DB)
	seederStack.AddSeeder(&groupsSeeder)
	if err := seederStack.Seed(); err != nil {
		return fmt.Errorf("seeding default groups: %w", err)
	}

	settings.HasSeeded = true
	return s.DB.Save(&settings).Error
}

// bootstrapServerSettings seeds the singleton ServerSettings row from
// the config file's [server] section the first time it's missing,
// leaving any later ServerEdit in place across restarts.
func (s *Store) bootstrapServerSettings(cfg config.Server) error {
	var existing models.ServerSettings
	err := s.DB.Where("id = ?", models.SingletonServerSettingsID).First(&existing).Error
	if err == nil {
		return nil
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}

	settings := models.ServerSettings{
		ID:         models.SingletonServerSettingsID,
		Name:       cfg.Name,
		Welcome:    cfg.Welcome,
		MaxClients: cfg.MaxClients,
	}
	return s.DB.Create(&settings).Error
}
