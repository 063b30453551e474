package knowledge

import (
	"context"
	"fmt"

	"github.com/zulandar/helpline/internal/models"
	"gorm.io/gorm"
)

// LoadDB reads the knowledge base from the knowledge_records table in ID
// order. A missing or empty table wraps ErrUnavailable.
func LoadDB(ctx context.Context, db *gorm.DB) (*Base, error) {
	if db == nil {
		return nil, fmt.Errorf("knowledge: load db: %w: no connection", ErrUnavailable)
	}
	var rows []models.KnowledgeRecord
	if err := db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("knowledge: load db: %w: %w", ErrUnavailable, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("knowledge: load db: %w: table is empty", ErrUnavailable)
	}
	records := make([]Record, len(rows))
	for i, r := range rows {
		records[i] = Record{
			Intent:    r.Intent,
			Utterance: r.UserMessage,
			Response:  r.BotResponse,
			Category:  r.Category,
		}
	}
	return NewBase(records), nil
}

// ToModels converts records to rows for insertion.
func ToModels(records []Record) []models.KnowledgeRecord {
	rows := make([]models.KnowledgeRecord, len(records))
	for i, r := range records {
		rows[i] = models.KnowledgeRecord{
			Intent:      r.Intent,
			UserMessage: r.Utterance,
			BotResponse: r.Response,
			Category:    r.Category,
		}
	}
	return rows
}
