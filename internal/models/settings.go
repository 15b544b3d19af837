package models

import "time"

// Theme is the UI color scheme preference.
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark || t == ThemeSystem
}

// OtherCategory is the catch-all label used when nothing else fits.
const OtherCategory = "Outros"

// MaxCategoryLen bounds a category label in runes. It matches the column
// size of Transaction.Category.
const MaxCategoryLen = 64

func DefaultIncomeCategories() []string {
	return []string{"Salário", "Investimentos", "Presente", OtherCategory}
}

func DefaultExpenseCategories() []string {
	return []string{"Alimentação", "Mercado", "Transporte", "Moradia", "Lazer", "Saúde", "Educação", "Compras", OtherCategory}
}

// Settings is the per-session settings document. It doubles as a partial
// update: nil fields are left untouched on merge.
type Settings struct {
	Theme             *Theme   `json:"theme,omitempty"`
	IncomeCategories  []string `json:"incomeCategories,omitempty"`
	ExpenseCategories []string `json:"expenseCategories,omitempty"`
}

// Merge returns s with every non-nil field of patch written over it.
func (s Settings) Merge(patch Settings) Settings {
	if patch.Theme != nil {
		th := *patch.Theme
		s.Theme = &th
	}
	if patch.IncomeCategories != nil {
		s.IncomeCategories = append([]string(nil), patch.IncomeCategories...)
	}
	if patch.ExpenseCategories != nil {
		s.ExpenseCategories = append([]string(nil), patch.ExpenseCategories...)
	}
	return s
}

// Categories returns the list for the given type.
func (s Settings) Categories(t TxType) []string {
	if t == Income {
		return s.IncomeCategories
	}
	return s.ExpenseCategories
}

// UserSettings is the stored form of Settings for authenticated sessions.
type UserSettings struct {
	UserID            string   `gorm:"primaryKey;size:128"`
	Theme             string   `gorm:"size:16"`
	IncomeCategories  []string `gorm:"type:text;serializer:json"`
	ExpenseCategories []string `gorm:"type:text;serializer:json"`
	UpdatedAt         time.Time
}

// Settings converts the stored row back into a document.
func (u UserSettings) Settings() Settings {
	var s Settings
	if u.Theme != "" {
		th := Theme(u.Theme)
		s.Theme = &th
	}
	s.IncomeCategories = u.IncomeCategories
	s.ExpenseCategories = u.ExpenseCategories
	return s
}
