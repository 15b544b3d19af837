package models

import "time"

// Backup points at an encrypted snapshot file of a user's records.
type Backup struct {
	ID           uint   `gorm:"primaryKey"`
	UserID       string `gorm:"index;size:128;not null"`
	FileName     string `gorm:"size:255;not null"`
	FilePath     string `gorm:"size:1024;not null"`
	Size         int64
	Transactions int
	MarketItems  int
	CreatedAt    time.Time
}
