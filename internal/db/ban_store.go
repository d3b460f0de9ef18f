package db

import (
	"time"

	"gorm.io/gorm"

	"github.com/speakeasy-rtc/speakeasy/internal/db/models"
	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
)

// BanStore is the gorm-backed BanRepo.
type BanStore struct {
	db *gorm.DB
}

// IsBanned reports the first active ban matching user and/or ip, if any.
func (s *BanStore) IsBanned(user *identifiers.UserID, ip string, now time.Time) (models.Ban, bool, error) {
	q := s.db.Where("expires_at IS NULL OR expires_at > ?", now)
	if user != nil && ip != "" {
		q = q.Where("user_id = ? OR ip = ?", *user, ip)
	} else if user != nil {
		q = q.Where("user_id = ?", *user)
	} else if ip != "" {
		q = q.Where("ip = ?", ip)
	} else {
		return models.Ban{}, false, nil
	}

	var ban models.Ban
	err := q.First(&ban).Error
	if err == gorm.ErrRecordNotFound {
		return models.Ban{}, false, nil
	}
	if err != nil {
		return models.Ban{}, false, err
	}
	return ban, true, nil
}

func (s *BanStore) Create(ban *models.Ban) error {
	return s.db.Create(ban).Error
}

func (s *BanStore) List() ([]models.Ban, error) {
	var bans []models.Ban
	err := s.db.Order("created_at desc").Find(&bans).Error
	return bans, err
}
