package parser

import (
	"strings"
	"unicode/utf8"

	"fintrack/internal/models"
)

// CategoryPolicy decides what happens to a category label that is not in
// the current set.
type CategoryPolicy int

const (
	// RegisterNovel keeps the label and reports it for registration when it
	// is longer than two characters and not the catch-all.
	RegisterNovel CategoryPolicy = iota
	// FallbackOther files every unknown label under the catch-all. Used when
	// categories.auto_register is off.
	FallbackOther
)

// NewCategory is a label an import wants added to a set.
type NewCategory struct {
	Type models.TxType `json:"type"`
	Name string        `json:"name"`
}

// Resolver matches labels against the two category sets. Labels it
// registers during one run are matched by later rows of the same run.
type Resolver struct {
	policy  CategoryPolicy
	income  []string
	expense []string
	added   []NewCategory
}

func NewResolver(income, expense []string, policy CategoryPolicy) *Resolver {
	return &Resolver{
		policy:  policy,
		income:  append([]string(nil), income...),
		expense: append([]string(nil), expense...),
	}
}

// Resolve returns the label to store for raw under type t. A case-insensitive
// match returns the existing casing. Labels longer than
// models.MaxCategoryLen are never registered.
func (r *Resolver) Resolve(t models.TxType, raw string) string {
	name := strings.TrimSpace(raw)
	if name == "" {
		return models.OtherCategory
	}

	list := r.list(t)
	for _, c := range *list {
		if strings.EqualFold(c, name) {
			return c
		}
	}

	if r.policy == RegisterNovel && name != models.OtherCategory && registrable(name) {
		*list = append(*list, name)
		r.added = append(r.added, NewCategory{Type: t, Name: name})
		return name
	}
	return models.OtherCategory
}

// Added lists the labels registered so far, in order of first use.
func (r *Resolver) Added() []NewCategory {
	return append([]NewCategory(nil), r.added...)
}

func registrable(name string) bool {
	n := utf8.RuneCountInString(name)
	return n > 2 && n <= models.MaxCategoryLen
}

func (r *Resolver) list(t models.TxType) *[]string {
	if t == models.Income {
		return &r.income
	}
	return &r.expense
}
