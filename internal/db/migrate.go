package db

import (
	"fmt"

	"github.com/zulandar/helpline/internal/models"
	"gorm.io/gorm"
)

// AllModels returns the GORM models managed by AutoMigrate.
func AllModels() []interface{} {
	return []interface{}{
		&models.KnowledgeRecord{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedKnowledge inserts knowledge rows in order. When replace is set the
// table is emptied first so IDs follow the new order.
func SeedKnowledge(db *gorm.DB, rows []models.KnowledgeRecord, replace bool) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if replace {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
				Delete(&models.KnowledgeRecord{}).Error; err != nil {
				return fmt.Errorf("db: clear knowledge: %w", err)
			}
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&rows, 100).Error; err != nil {
			return fmt.Errorf("db: seed knowledge: %w", err)
		}
		return nil
	})
}

// CountKnowledge returns the number of stored knowledge rows.
func CountKnowledge(db *gorm.DB) (int64, error) {
	var n int64
	if err := db.Model(&models.KnowledgeRecord{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("db: count knowledge: %w", err)
	}
	return n, nil
}
