package db

import (
	"gorm.io/gorm"

	"github.com/speakeasy-rtc/speakeasy/internal/db/models"
)

// ServerStore is the gorm-backed ServerRepo, always operating on the
// singleton row ID=models.SingletonServerSettingsID.
type ServerStore struct {
	db *gorm.DB
}

func (s *ServerStore) Get() (models.ServerSettings, error) {
	var row models.ServerSettings
	err := s.db.Where("id = ?", models.SingletonServerSettingsID).First(&row).Error
	return row, err
}

func (s *ServerStore) Update(settings models.ServerSettings) error {
	settings.ID = models.SingletonServerSettingsID
	return s.db.Save(&settings).Error
}
