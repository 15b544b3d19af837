package parser

import (
	"sort"
	"strings"
	"time"

	"fintrack/internal/models"

	"github.com/shopspring/decimal"
)

// LegacyReceiptID groups items stored before receipts had ids.
const LegacyReceiptID = "legacy"

type ReceiptGroup struct {
	ReceiptID string              `json:"receiptId"`
	Merchant  string              `json:"merchant"`
	Date      time.Time           `json:"date"`
	Total     decimal.Decimal     `json:"total"`
	Items     []models.MarketItem `json:"items"`
}

// GroupReceipts groups the items of one month by receipt, newest first.
// A zero month keeps every item. The total covers the whole receipt; search
// then narrows the listed items by name or category and drops groups left
// empty.
func GroupReceipts(items []models.MarketItem, year int, month time.Month, search string) []ReceiptGroup {
	index := map[string]int{}
	var groups []ReceiptGroup
	for _, it := range items {
		if month != 0 && (it.Date.Year() != year || it.Date.Month() != month) {
			continue
		}
		key := it.ReceiptID
		if key == "" {
			key = LegacyReceiptID
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, ReceiptGroup{
				ReceiptID: key,
				Merchant:  it.Merchant,
				Date:      it.Date,
				Total:     decimal.Zero,
			})
		}
		groups[i].Total = groups[i].Total.Add(it.Price)
		groups[i].Items = append(groups[i].Items, it)
	}

	if q := strings.ToLower(strings.TrimSpace(search)); q != "" {
		kept := groups[:0]
		for _, g := range groups {
			var match []models.MarketItem
			for _, it := range g.Items {
				if strings.Contains(strings.ToLower(it.Name), q) || strings.Contains(strings.ToLower(it.Category), q) {
					match = append(match, it)
				}
			}
			if len(match) > 0 {
				g.Items = match
				kept = append(kept, g)
			}
		}
		groups = kept
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Date.After(groups[j].Date)
	})
	return groups
}
