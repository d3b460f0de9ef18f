package db

import (
	"time"

	"gorm.io/gorm"

	"github.com/speakeasy-rtc/speakeasy/internal/db/models"
	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
)

// UserStore is the gorm-backed UserRepo, grounded on the teacher's
// internal/db/models/user.go query idiom (Where/First/Save).
type UserStore struct {
	db *gorm.DB
}

func (s *UserStore) FindByID(id identifiers.UserID) (models.User, error) {
	var u models.User
	err := s.db.Where("id = ?", id).First(&u).Error
	return u, err
}

func (s *UserStore) FindByName(name string) (models.User, error) {
	var u models.User
	err := s.db.Where("name = ?", name).First(&u).Error
	return u, err
}

func (s *UserStore) Create(user *models.User) error {
	return s.db.Create(user).Error
}

func (s *UserStore) UpdatePasswordHash(id identifiers.UserID, hash string, mustChangePw bool) error {
	return s.db.Model(&models.User{}).Where("id = ?", id).Updates(map[string]any{
		"password_hash":  hash,
		"must_change_pw": mustChangePw,
	}).Error
}

func (s *UserStore) UpdateLastLogin(id identifiers.UserID, at time.Time) error {
	return s.db.Model(&models.User{}).Where("id = ?", id).Update("last_login_at", at).Error
}

func (s *UserStore) Count() (int64, error) {
	var count int64
	err := s.db.Model(&models.User{}).Count(&count).Error
	return count, err
}
