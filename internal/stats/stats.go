// Package stats computes the monthly dashboard figures.
package stats

import (
	"sort"
	"time"

	"fintrack/internal/models"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// NoCategory is reported as the top category of a month without expenses.
const NoCategory = "Nenhuma"

type DayFlow struct {
	Day     int             `json:"day"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
}

type CategoryTotal struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
}

type Summary struct {
	Year        int             `json:"year"`
	Month       time.Month      `json:"month"`
	Count       int             `json:"count"`
	Income      decimal.Decimal `json:"income"`
	Expense     decimal.Decimal `json:"expense"`
	Balance     decimal.Decimal `json:"balance"`
	TopCategory string          `json:"topCategory"`
	Daily       []DayFlow       `json:"daily"`
	ByCategory  []CategoryTotal `json:"byCategory"`
}

// Month sums the transactions dated in the given month. Daily flow is
// ordered by day, the category breakdown by total descending.
func Month(txns []models.Transaction, year int, month time.Month) Summary {
	s := Summary{
		Year:        year,
		Month:       month,
		Income:      decimal.Zero,
		Expense:     decimal.Zero,
		TopCategory: NoCategory,
		Daily:       []DayFlow{},
		ByCategory:  []CategoryTotal{},
	}

	days := map[int]*DayFlow{}
	cats := map[string]decimal.Decimal{}
	for _, t := range txns {
		if t.Date.Year() != year || t.Date.Month() != month {
			continue
		}
		s.Count++
		d, ok := days[t.Date.Day()]
		if !ok {
			d = &DayFlow{Day: t.Date.Day(), Income: decimal.Zero, Expense: decimal.Zero}
			days[t.Date.Day()] = d
		}
		if t.Type == models.Income {
			s.Income = s.Income.Add(t.Amount)
			d.Income = d.Income.Add(t.Amount)
			continue
		}
		s.Expense = s.Expense.Add(t.Amount)
		d.Expense = d.Expense.Add(t.Amount)
		cats[t.Category] = cats[t.Category].Add(t.Amount)
	}
	s.Balance = s.Income.Sub(s.Expense)

	for _, d := range days {
		s.Daily = append(s.Daily, *d)
	}
	sort.Slice(s.Daily, func(i, j int) bool { return s.Daily[i].Day < s.Daily[j].Day })

	for c, total := range cats {
		s.ByCategory = append(s.ByCategory, CategoryTotal{Category: c, Total: total})
	}
	sort.Slice(s.ByCategory, func(i, j int) bool {
		if !s.ByCategory[i].Total.Equal(s.ByCategory[j].Total) {
			return s.ByCategory[i].Total.GreaterThan(s.ByCategory[j].Total)
		}
		return s.ByCategory[i].Category < s.ByCategory[j].Category
	})
	if len(s.ByCategory) > 0 {
		s.TopCategory = s.ByCategory[0].Category
	}
	return s
}

// Criteria narrows a transaction list. Zero fields match everything.
type Criteria struct {
	Year     int
	Month    time.Month
	Type     models.TxType
	Category string
}

// Filter returns the matching transactions, newest first.
func Filter(txns []models.Transaction, c Criteria) []models.Transaction {
	out := []models.Transaction{}
	for _, t := range txns {
		if c.Month != 0 && (t.Date.Year() != c.Year || t.Date.Month() != c.Month) {
			continue
		}
		if c.Type != "" && t.Type != c.Type {
			continue
		}
		if c.Category != "" && t.Category != c.Category {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

// UsedCategories lists the distinct labels in txns, sorted.
func UsedCategories(txns []models.Transaction) []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range txns {
		if !seen[t.Category] {
			seen[t.Category] = true
			out = append(out, t.Category)
		}
	}
	sort.Strings(out)
	return out
}

var (
	brlDisplay = money.NewFormatter(2, ",", ".", "R$", "$ 1")
	brlPlain   = money.NewFormatter(2, ",", ".", "", "1")
)

// FormatBRL renders d as "R$ 1.234,56".
func FormatBRL(d decimal.Decimal) string {
	return brlDisplay.Format(cents(d))
}

// FormatAmount renders d as "1.234,56".
func FormatAmount(d decimal.Decimal) string {
	return brlPlain.Format(cents(d))
}

func cents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}
