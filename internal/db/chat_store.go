package db

import (
	"gorm.io/gorm"

	"github.com/speakeasy-rtc/speakeasy/internal/db/models"
	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
)

// ChatStore is the gorm-backed ChatRepo.
type ChatStore struct {
	db *gorm.DB
}

func (s *ChatStore) SaveMessage(msg *models.ChatMessage) error {
	return s.db.Create(msg).Error
}

func (s *ChatStore) History(channel identifiers.ChannelID, limit int) ([]models.ChatMessage, error) {
	var msgs []models.ChatMessage
	err := s.db.Where("channel_id = ?", channel).Order("sent_at desc").Limit(limit).Find(&msgs).Error
	return msgs, err
}
