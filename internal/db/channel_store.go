package db

import (
	"gorm.io/gorm"

	"github.com/speakeasy-rtc/speakeasy/internal/db/models"
	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
)

// ChannelStore is the gorm-backed ChannelRepo.
type ChannelStore struct {
	db *gorm.DB
}

func (s *ChannelStore) FindByID(id identifiers.ChannelID) (models.Channel, error) {
	var ch models.Channel
	err := s.db.Where("id = ?", id).First(&ch).Error
	return ch, err
}

func (s *ChannelStore) FindDefault() (models.Channel, error) {
	var ch models.Channel
	err := s.db.Where("default = ?", true).First(&ch).Error
	return ch, err
}

func (s *ChannelStore) List() ([]models.Channel, error) {
	var chs []models.Channel
	err := s.db.Order("sort_order asc").Find(&chs).Error
	return chs, err
}

func (s *ChannelStore) Create(ch *models.Channel) error {
	return s.db.Create(ch).Error
}

func (s *ChannelStore) Delete(id identifiers.ChannelID) error {
	return s.db.Where("id = ?", id).Delete(&models.Channel{}).Error
}
