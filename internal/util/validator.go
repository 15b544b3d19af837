package util

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"fintrack/internal/models"

	"github.com/shopspring/decimal"
)

var maxAmount = decimal.NewFromInt(10_000_000)

// ValidateAmount checks the amount is positive and below ten million.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s", amount)
	}
	if amount.GreaterThanOrEqual(maxAmount) {
		return fmt.Errorf("amount too large, got %s", amount)
	}
	return nil
}

// ValidateDate checks the YYYY-MM-DD format.
func ValidateDate(dateStr string) error {
	if dateStr == "" {
		return fmt.Errorf("date is empty")
	}
	_, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return fmt.Errorf("invalid date format: %w", err)
	}
	return nil
}

// ValidateCategory checks a category label is present and reasonably short.
func ValidateCategory(category string) error {
	category = strings.TrimSpace(category)
	if category == "" {
		return fmt.Errorf("category is empty")
	}
	if utf8.RuneCountInString(category) > models.MaxCategoryLen {
		return fmt.Errorf("category too long, max %d characters", models.MaxCategoryLen)
	}
	return nil
}
