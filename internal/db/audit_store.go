package db

import (
	"gorm.io/gorm"

	"github.com/speakeasy-rtc/speakeasy/internal/db/models"
)

// AuditStore is the gorm-backed AuditRepo.
type AuditStore struct {
	db *gorm.DB
}

func (s *AuditStore) Write(entry *models.AuditEntry) error {
	return s.db.Create(entry).Error
}
