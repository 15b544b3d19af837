package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TxType tells whether a transaction adds to or takes from the balance.
type TxType string

const (
	Income  TxType = "income"
	Expense TxType = "expense"
)

// Valid reports whether t is one of the two known types.
func (t TxType) Valid() bool {
	return t == Income || t == Expense
}

// Transaction is one income or expense record owned by a session user.
// The ID is kept both as the record key and as a field of the record.
type Transaction struct {
	ID          string          `gorm:"primaryKey;size:64" json:"id"`
	UserID      string          `gorm:"primaryKey;size:128" json:"-"`
	Description string          `gorm:"size:255" json:"description"`
	Amount      decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"amount"`
	Type        TxType          `gorm:"size:16;index;not null" json:"type"`
	Category    string          `gorm:"size:64;index" json:"category"`
	Date        time.Time       `gorm:"index;not null" json:"date"`
}
