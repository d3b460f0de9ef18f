package db

import (
	"gorm.io/gorm"

	"github.com/speakeasy-rtc/speakeasy/internal/db/models"
)

// FileStore is the gorm-backed FileRepo.
type FileStore struct {
	db *gorm.DB
}

func (s *FileStore) SaveMetadata(f *models.FileMetadata) error {
	return s.db.Create(f).Error
}

func (s *FileStore) Get(id uint64) (models.FileMetadata, error) {
	var f models.FileMetadata
	err := s.db.Where("id = ?", id).First(&f).Error
	return f, err
}
