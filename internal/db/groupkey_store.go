package db

import (
	"gorm.io/gorm"

	"github.com/speakeasy-rtc/speakeasy/internal/db/models"
	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
)

// GroupKeyStore is the gorm-backed GroupKeyRepo.
type GroupKeyStore struct {
	db *gorm.DB
}

func (s *GroupKeyStore) SaveWrapped(rec *models.GroupKeyRecord) error {
	return s.db.Create(rec).Error
}

func (s *GroupKeyStore) FindWrapped(channel identifiers.ChannelID, epoch uint32, user identifiers.UserID) (models.GroupKeyRecord, bool, error) {
	var rec models.GroupKeyRecord
	err := s.db.Where("channel_id = ? AND epoch = ? AND recipient_user = ?", channel, epoch, user).First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return models.GroupKeyRecord{}, false, nil
	}
	if err != nil {
		return models.GroupKeyRecord{}, false, err
	}
	return rec, true, nil
}
