package db

import (
	"gorm.io/gorm"

	"github.com/speakeasy-rtc/speakeasy/internal/db/models"
	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
)

// IdentityStore is the gorm-backed IdentityRepo.
type IdentityStore struct {
	db *gorm.DB
}

func (s *IdentityStore) Upsert(identity *models.Identity) error {
	return s.db.Save(identity).Error
}

func (s *IdentityStore) FindByUser(user identifiers.UserID) (models.Identity, bool, error) {
	var identity models.Identity
	err := s.db.Where("user_id = ?", user).First(&identity).Error
	if err == gorm.ErrRecordNotFound {
		return models.Identity{}, false, nil
	}
	if err != nil {
		return models.Identity{}, false, err
	}
	return identity, true, nil
}
