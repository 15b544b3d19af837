// Package chat builds the advisor prompt from a session's data and asks the
// model for an answer.
package chat

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"fintrack/internal/models"
	"fintrack/internal/parser"
	"fintrack/internal/stats"
)

type Persona string

const (
	Formal  Persona = "formal"
	Sincere Persona = "sincero"
)

func (p Persona) Valid() bool {
	return p == Formal || p == Sincere
}

// Default windows sent to the model.
const (
	TransactionWindow = 100
	MarketWindow      = 50
)

// Context is everything the advisor is told about the user.
type Context struct {
	Stats        stats.Summary
	Transactions []models.Transaction
	MarketItems  []models.MarketItem
	Persona      Persona

	// zero means the default window
	TransactionWindow int
	MarketWindow      int
}

type txnDigest struct {
	Date   string  `json:"date"`
	Desc   string  `json:"desc"`
	Amount float64 `json:"amount"`
	Cat    string  `json:"cat"`
	Type   string  `json:"type"`
}

type itemDigest struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Date  string  `json:"date"`
}

// RecentTransactions returns the n most recent transactions, oldest first.
func RecentTransactions(txns []models.Transaction, n int) []models.Transaction {
	out := append([]models.Transaction(nil), txns...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	if n >= 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// RecentMarketItems returns the n most recent items, oldest first.
func RecentMarketItems(items []models.MarketItem, n int) []models.MarketItem {
	out := append([]models.MarketItem(nil), items...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	if n >= 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

const appDocs = `APP DOCUMENTATION (USE THIS TO EXPLAIN FEATURES):
- **Dashboard**: Shows current Balance, Income/Expense cards, and charts (Daily Flow bar chart and Category Pie chart).
- **Add Transaction**:
  1. "Manual": Type value and description.
  2. "Magic (Camera)": Upload a receipt image/PDF, AI extracts data automatically.
- **Batch / Statement ("Em Lote / Extrato")**: Upload a full bank statement or credit card bill (PDF/Image). AI extracts ALL transactions at once into a list you can edit.
- **Market Sub-App ("Mercadinho")**: Upload grocery receipts with "Scan". AI extracts EVERY SINGLE ITEM (e.g., Rice, Beer, Soap).
  - View history of purchases grouped by Receipt/Date.
  - Filter by month.
- **Settings**: Change Theme (Light/Dark), Manage Categories (Add/Edit/Delete), Export/Import CSV, Clear All Data.
- **Filters**: Filter main list by Date (Month/Year) or Type/Category.`

const searchInstructions = `CRITICAL INSTRUCTION FOR DATA RETRIEVAL:
When the user asks about a specific spending (e.g., "How much did I spend on McDonalds?", "Uber expenses?"):
1. YOU MUST PERFORM A FUZZY SEARCH. Do NOT look for exact matches.
2. Match ANY transaction where the 'desc' (description) CONTAINS the user's keyword.
   - Example: If user asks "McDonalds", MATCH "MCDONALDS SAO PAULO", "BURGER KING VS MCDONALDS", "PG *MCDONALDS".
   - Example: If user asks "Uber", MATCH "UBER *TRIP", "UBER EATS", "UBER BR".
3. Case insensitive matching.
4. AGGREGATE (SUM) the amounts of all matching transactions and report the total.
5. List the individual transactions found to prove your point.`

const formalIntro = `You are a professional, polite, and objective financial consultant.
Your tone is like a bank manager. Be concise and data-driven.`

const formalRules = `If the user asks about specific products (like beer, rice), check the Market Items History.
If the user asks about general spending (Uber, Electricity, Salary), check the General Transactions History using the fuzzy search rules above.
If asked about prices or market trends, USE GOOGLE SEARCH to find real-time information.
If asked how to use the app, refer to the APP DOCUMENTATION above.`

const sincereIntro = `You are a "Sincere Consultant". You are a brutally honest friend who roasts the user for bad financial decisions.
Use slang, be funny, sarcasm is encouraged. If the user is spending too much, scold them.
If they are doing well, be skeptical.`

const sincereRules = `If the user asks about specific products (like "how much did I spend on beer?"), look at the Market Items History and roast them if it's high.
If the user asks about general spending (like "Uber", "Ifood", "Rent"), look at the General Transactions History using FUZZY SEARCH (e.g., match "Uber" in "Uber Trip ...").
If asked about prices, USE GOOGLE SEARCH to verify if they paid too much and roast them if they did.
If asked how to use the app, explain it simply but with your sarcastic flair.
Example: "You spent 500 on food? Do you think you are a king? Learn to cook!"`

// BuildInstruction renders the system instruction for c. Any persona other
// than Sincere gets the formal template.
func BuildInstruction(c Context) string {
	intro, rules := formalIntro, formalRules
	if c.Persona == Sincere {
		intro, rules = sincereIntro, sincereRules
	}

	var b strings.Builder
	b.WriteString(intro)
	b.WriteString("\n\n")
	b.WriteString(appDocs)
	b.WriteString("\n\n")
	b.WriteString(searchInstructions)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Current User Stats for this month: Income: %s, Expense: %s, Top Expense Category: %s.\n\n",
		stats.FormatBRL(c.Stats.Income), stats.FormatBRL(c.Stats.Expense), topCategory(c.Stats))
	b.WriteString("DATA SOURCES:\n")
	fmt.Fprintf(&b, "1. %s\n", transactionsContext(c))
	fmt.Fprintf(&b, "2. %s\n\n", marketContext(c))
	b.WriteString(rules)
	return b.String()
}

func topCategory(s stats.Summary) string {
	if s.TopCategory == "" {
		return stats.NoCategory
	}
	return s.TopCategory
}

func transactionsContext(c Context) string {
	n := c.TransactionWindow
	if n <= 0 {
		n = TransactionWindow
	}
	recent := RecentTransactions(c.Transactions, n)
	if len(recent) == 0 {
		return "No general transactions available yet."
	}
	digest := make([]txnDigest, 0, len(recent))
	for _, t := range recent {
		digest = append(digest, txnDigest{
			Date:   t.Date.Format(parser.DateLayout),
			Desc:   t.Description,
			Amount: t.Amount.InexactFloat64(),
			Cat:    t.Category,
			Type:   string(t.Type),
		})
	}
	return "Current General Transactions History (Summary): " + mustJSON(digest)
}

func marketContext(c Context) string {
	n := c.MarketWindow
	if n <= 0 {
		n = MarketWindow
	}
	recent := RecentMarketItems(c.MarketItems, n)
	if len(recent) == 0 {
		return "No detailed market items available yet."
	}
	digest := make([]itemDigest, 0, len(recent))
	for _, it := range recent {
		digest = append(digest, itemDigest{
			Name:  it.Name,
			Price: it.Price.InexactFloat64(),
			Date:  it.Date.Format(parser.DateLayout),
		})
	}
	return "Current Market/Grocery Items History (Detailed): " + mustJSON(digest)
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}
