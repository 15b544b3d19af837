// Package parser turns imported text and AI extraction results into
// normalized transactions and market items.
package parser

import (
	"encoding/csv"
	"strings"
	"time"

	"fintrack/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const defaultDescription = "Importado"

// Words in the type column that mark a row as an expense.
var expenseKeywords = []string{"saída", "débito", "pagamento"}

// Candidate is a parsed row waiting to be reviewed or committed.
type Candidate struct {
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Type        models.TxType   `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
}

// Transaction builds the record to store, with a fresh id.
func (c Candidate) Transaction() models.Transaction {
	d, ok := ParseDay(c.Date)
	if !ok {
		d = Today(time.Now())
	}
	return models.Transaction{
		ID:          uuid.NewString(),
		Description: c.Description,
		Amount:      c.Amount,
		Type:        c.Type,
		Category:    c.Category,
		Date:        d,
	}
}

type Options struct {
	Income  []string
	Expense []string
	Policy  CategoryPolicy
	Now     func() time.Time
}

type Result struct {
	Candidates    []Candidate   `json:"candidates"`
	Skipped       int           `json:"skipped"`
	NewCategories []NewCategory `json:"newCategories"`
}

// ParseDelimitedText reads a statement export. The first line is a header.
// Each line picks its own separator: ';' when present, else ','. Columns are
// date, description, category, an optional type, and the amount last.
// Rows with fewer than three columns or an unreadable amount are skipped.
// A zero amount stays a candidate and is rejected when committed.
func ParseDelimitedText(raw string, opts Options) Result {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	res := NewResolver(opts.Income, opts.Expense, opts.Policy)

	var out Result
	lines := strings.Split(strings.TrimPrefix(raw, "\ufeff"), "\n")
	for idx, line := range lines {
		line = strings.TrimRight(line, "\r")
		if idx == 0 || strings.TrimSpace(line) == "" {
			continue
		}

		cols := splitLine(line)
		if len(cols) < 3 {
			out.Skipped++
			continue
		}

		signed, err := ParseAmount(cols[len(cols)-1])
		if err != nil {
			out.Skipped++
			continue
		}

		typ := models.Income
		if signed.IsNegative() || isExpenseLabel(col(cols, 3)) {
			typ = models.Expense
		}

		desc := strings.TrimSpace(cols[1])
		if desc == "" {
			desc = defaultDescription
		}

		out.Candidates = append(out.Candidates, Candidate{
			Date:        NormalizeDate(cols[0], now()),
			Description: desc,
			Category:    res.Resolve(typ, cols[2]),
			Type:        typ,
			Amount:      signed.Abs(),
		})
	}
	out.NewCategories = res.Added()
	return out
}

// splitLine splits one line on its inferred separator, honoring quotes.
func splitLine(line string) []string {
	sep := ','
	if strings.Contains(line, ";") {
		sep = ';'
	}
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = sep
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	rec, err := r.Read()
	if err != nil {
		return strings.Split(strings.ReplaceAll(line, `"`, ""), string(sep))
	}
	return rec
}

func col(cols []string, i int) string {
	if i < len(cols)-1 {
		return cols[i]
	}
	return ""
}

func isExpenseLabel(s string) bool {
	s = strings.ToLower(s)
	for _, kw := range expenseKeywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
