// Package session owns the live state of one user session: it applies
// store snapshots and local edits through explicit actions, and is the only
// writer of that state.
package session

import (
	"sync"

	"fintrack/internal/models"
)

type ActionType string

const (
	TransactionsLoaded ActionType = "transactions_loaded"
	MarketItemsLoaded  ActionType = "market_items_loaded"
	TransactionSaved   ActionType = "transaction_saved"
	TransactionDeleted ActionType = "transaction_deleted"
	SettingsLoaded     ActionType = "settings_loaded"
	CategoriesChanged  ActionType = "categories_changed"
	CategoryRenamed    ActionType = "category_renamed"
	ThemeChanged       ActionType = "theme_changed"
	Cleared            ActionType = "cleared"
)

// Action is one state transition. Only the fields its Type names are read.
type Action struct {
	Type ActionType

	Transactions []models.Transaction
	MarketItems  []models.MarketItem
	Transaction  models.Transaction
	ID           string

	TxType     models.TxType
	Categories []string
	OldName    string
	NewName    string

	Theme    models.Theme
	Settings models.Settings
}

// Snapshot is a read-only copy of the state.
type Snapshot struct {
	Transactions      []models.Transaction `json:"transactions"`
	MarketItems       []models.MarketItem  `json:"marketItems"`
	IncomeCategories  []string             `json:"incomeCategories"`
	ExpenseCategories []string             `json:"expenseCategories"`
	Theme             models.Theme         `json:"theme"`
	Version           uint64               `json:"version"`
}

type State struct {
	mu   sync.RWMutex
	snap Snapshot
}

func NewState() *State {
	return &State{snap: Snapshot{
		Transactions:      []models.Transaction{},
		MarketItems:       []models.MarketItem{},
		IncomeCategories:  models.DefaultIncomeCategories(),
		ExpenseCategories: models.DefaultExpenseCategories(),
		Theme:             models.ThemeSystem,
	}}
}

// Dispatch applies a and returns the transactions it rewrote, which only
// CategoryRenamed produces.
func (s *State) Dispatch(a Action) []models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	var touched []models.Transaction
	next := s.snap
	switch a.Type {
	case TransactionsLoaded:
		next.Transactions = cloneTxns(a.Transactions)
	case MarketItemsLoaded:
		next.MarketItems = append([]models.MarketItem{}, a.MarketItems...)
	case TransactionSaved:
		next.Transactions = upsert(next.Transactions, a.Transaction)
	case TransactionDeleted:
		next.Transactions = remove(next.Transactions, a.ID)
	case SettingsLoaded:
		if a.Settings.IncomeCategories != nil {
			next.IncomeCategories = append([]string{}, a.Settings.IncomeCategories...)
		}
		if a.Settings.ExpenseCategories != nil {
			next.ExpenseCategories = append([]string{}, a.Settings.ExpenseCategories...)
		}
		if a.Settings.Theme != nil {
			next.Theme = *a.Settings.Theme
		}
	case CategoriesChanged:
		setList(&next, a.TxType, append([]string{}, a.Categories...))
	case CategoryRenamed:
		list := append([]string{}, listOf(next, a.TxType)...)
		for i, c := range list {
			if c == a.OldName {
				list[i] = a.NewName
			}
		}
		setList(&next, a.TxType, list)

		txns := cloneTxns(next.Transactions)
		for i := range txns {
			if txns[i].Type == a.TxType && txns[i].Category == a.OldName {
				txns[i].Category = a.NewName
				touched = append(touched, txns[i])
			}
		}
		next.Transactions = txns
	case ThemeChanged:
		next.Theme = a.Theme
	case Cleared:
		next.Transactions = []models.Transaction{}
		next.MarketItems = []models.MarketItem{}
	default:
		return nil
	}
	next.Version++
	s.snap = next
	return touched
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.snap
	snap.IncomeCategories = append([]string{}, snap.IncomeCategories...)
	snap.ExpenseCategories = append([]string{}, snap.ExpenseCategories...)
	return snap
}

// Transactions returns the current list. It must not be modified.
func (s *State) Transactions() []models.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Transactions
}

// MarketItems returns the current list. It must not be modified.
func (s *State) MarketItems() []models.MarketItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.MarketItems
}

func (s *State) Categories(t models.TxType) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, listOf(s.snap, t)...)
}

func (s *State) SetCategories(t models.TxType, list []string) {
	s.Dispatch(Action{Type: CategoriesChanged, TxType: t, Categories: list})
}

func (s *State) RenameCategory(t models.TxType, oldName, newName string) []models.Transaction {
	return s.Dispatch(Action{Type: CategoryRenamed, TxType: t, OldName: oldName, NewName: newName})
}

func listOf(s Snapshot, t models.TxType) []string {
	if t == models.Income {
		return s.IncomeCategories
	}
	return s.ExpenseCategories
}

func setList(s *Snapshot, t models.TxType, list []string) {
	if t == models.Income {
		s.IncomeCategories = list
	} else {
		s.ExpenseCategories = list
	}
}

func cloneTxns(in []models.Transaction) []models.Transaction {
	return append([]models.Transaction{}, in...)
}

// upsert replaces t in place or prepends it.
func upsert(list []models.Transaction, t models.Transaction) []models.Transaction {
	out := make([]models.Transaction, 0, len(list)+1)
	found := false
	for _, x := range list {
		if x.ID == t.ID {
			out = append(out, t)
			found = true
			continue
		}
		out = append(out, x)
	}
	if !found {
		out = append([]models.Transaction{t}, out...)
	}
	return out
}

func remove(list []models.Transaction, id string) []models.Transaction {
	out := make([]models.Transaction, 0, len(list))
	for _, x := range list {
		if x.ID != id {
			out = append(out, x)
		}
	}
	return out
}
