package models

import "time"

// KnowledgeRecord is a canned support answer stored in SQL. Rows are read in
// ID order, which is the order the matchers see them.
type KnowledgeRecord struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	Intent      string    `gorm:"size:64;index"`
	UserMessage string    `gorm:"type:text;not null"`
	BotResponse string    `gorm:"type:text;not null"`
	Category    string    `gorm:"size:64"`
	CreatedAt   time.Time
}
