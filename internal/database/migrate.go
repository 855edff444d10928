package database

import (
	"github.com/xpanvictor/voxline/internal/repository/conversation"
	"gorm.io/gorm"
)

// MigrateDB creates or updates the archive tables.
func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&conversation.TurnEntity{},
	)
}
