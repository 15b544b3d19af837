package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketItem is one line of an itemized grocery receipt. Items of the same
// receipt share a ReceiptID.
type MarketItem struct {
	ID        string          `gorm:"primaryKey;size:64" json:"id"`
	UserID    string          `gorm:"primaryKey;size:128" json:"-"`
	ReceiptID string          `gorm:"size:64;index" json:"receiptId"`
	Name      string          `gorm:"size:255" json:"name"`
	Category  string          `gorm:"size:64" json:"category"`
	Price     decimal.Decimal `gorm:"type:decimal(14,2)" json:"price"`
	Quantity  decimal.Decimal `gorm:"type:decimal(10,3)" json:"quantity"`
	Unit      string          `gorm:"size:16" json:"unit"`
	Date      time.Time       `gorm:"index" json:"date"`
	Merchant  string          `gorm:"size:128" json:"merchant"`
}
