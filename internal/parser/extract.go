package parser

import (
	"strings"
	"time"

	"fintrack/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Defaults for fields an extraction left empty.
const (
	DetectedDescription = "Item Detectado"
	MarketCategory      = "Mercado"
	DefaultMerchant     = "Mercado"
	DefaultItemCategory = "Geral"
	DefaultUnit         = "un"
)

// ReceiptData is what the extractor reads from a single receipt.
type ReceiptData struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Date        string          `json:"date"`
	Category    string          `json:"category"`
}

// StatementEntry is one line the extractor found on a statement or bill.
type StatementEntry struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date"`
	Type        string          `json:"type"`
	Category    string          `json:"category"`
}

// ReceiptLine is one product of an itemized grocery receipt.
type ReceiptLine struct {
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// ItemizedReceipt is a grocery receipt with every purchased item.
type ItemizedReceipt struct {
	Merchant string          `json:"merchant"`
	Date     string          `json:"date"`
	Total    decimal.Decimal `json:"total"`
	Items    []ReceiptLine   `json:"items"`
}

// FromReceipt turns a scanned receipt into an expense candidate.
func FromReceipt(d ReceiptData, res *Resolver, now time.Time) Candidate {
	desc := strings.TrimSpace(d.Description)
	if desc == "" {
		desc = DetectedDescription
	}
	return Candidate{
		Date:        extractedDay(d.Date, now).Format(DateLayout),
		Description: desc,
		Category:    res.Resolve(models.Expense, d.Category),
		Type:        models.Expense,
		Amount:      d.Amount.Abs(),
	}
}

// FromStatement turns statement lines into candidates. Lines without an
// amount are skipped. The type defaults to expense.
func FromStatement(entries []StatementEntry, res *Resolver, now time.Time) Result {
	var out Result
	for _, e := range entries {
		if e.Amount.IsZero() {
			out.Skipped++
			continue
		}
		typ := models.TxType(strings.ToLower(strings.TrimSpace(e.Type)))
		if !typ.Valid() {
			typ = models.Expense
		}
		desc := strings.TrimSpace(e.Description)
		if desc == "" {
			desc = DetectedDescription
		}
		out.Candidates = append(out.Candidates, Candidate{
			Date:        extractedDay(e.Date, now).Format(DateLayout),
			Description: desc,
			Category:    res.Resolve(typ, e.Category),
			Type:        typ,
			Amount:      e.Amount.Abs(),
		})
	}
	out.NewCategories = res.Added()
	return out
}

// FromItemizedReceipt builds one receipt group: an expense for the receipt
// total filed under Mercado, and the items sharing a new receipt id. A zero
// total is replaced by the sum of the item prices.
func FromItemizedReceipt(r ItemizedReceipt, now time.Time) (models.Transaction, []models.MarketItem) {
	receiptID := uuid.NewString()
	day := extractedDay(r.Date, now)
	merchant := strings.TrimSpace(r.Merchant)
	if merchant == "" {
		merchant = DefaultMerchant
	}

	items := make([]models.MarketItem, 0, len(r.Items))
	sum := decimal.Zero
	for _, l := range r.Items {
		name := strings.TrimSpace(l.Name)
		if name == "" {
			name = DetectedDescription
		}
		cat := strings.TrimSpace(l.Category)
		if cat == "" {
			cat = DefaultItemCategory
		}
		qty := l.Quantity
		if !qty.IsPositive() {
			qty = decimal.NewFromInt(1)
		}
		price := l.Price.Abs()
		sum = sum.Add(price)
		items = append(items, models.MarketItem{
			ID:        uuid.NewString(),
			ReceiptID: receiptID,
			Name:      name,
			Category:  cat,
			Price:     price,
			Quantity:  qty,
			Unit:      DefaultUnit,
			Date:      day,
			Merchant:  merchant,
		})
	}

	total := r.Total.Abs()
	if total.IsZero() {
		total = sum
	}
	tx := models.Transaction{
		ID:          uuid.NewString(),
		Description: merchant,
		Amount:      total,
		Type:        models.Expense,
		Category:    MarketCategory,
		Date:        day,
	}
	return tx, items
}

func extractedDay(raw string, now time.Time) time.Time {
	if d, ok := ParseDay(raw); ok {
		return d
	}
	return Today(now)
}
