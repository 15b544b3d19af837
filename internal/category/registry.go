// Package category manages the income and expense label sets of a session.
package category

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"fintrack/internal/models"
	"fintrack/internal/store"
)

var (
	ErrInvalidName = errors.New("category: invalid name")
	ErrInvalidType = errors.New("category: invalid type")
	ErrUnknown     = errors.New("category: not in set")
	ErrExists      = errors.New("category: already in set")
)

// Cache is the in-memory session state the registry keeps in step.
type Cache interface {
	Categories(t models.TxType) []string
	SetCategories(t models.TxType, list []string)
	// RenameCategory relabels the set and the cached transactions and
	// returns the transactions it changed.
	RenameCategory(t models.TxType, oldName, newName string) []models.Transaction
}

type Registry struct {
	mu    sync.Mutex
	store store.Store
	cache Cache
}

func NewRegistry(st store.Store, cache Cache) *Registry {
	return &Registry{store: st, cache: cache}
}

// List returns the current labels for t, in order.
func (r *Registry) List(t models.TxType) []string {
	return r.cache.Categories(t)
}

// Add appends name to the set of t. It reports false when the exact label
// is already there.
func (r *Registry) Add(ctx context.Context, t models.TxType, name string) (bool, error) {
	name, err := clean(t, name)
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.cache.Categories(t)
	if indexOf(list, name) >= 0 {
		return false, nil
	}
	list = append(list, name)
	if err := r.persist(ctx, t, list); err != nil {
		return false, err
	}
	return true, nil
}

// Remove drops name from the set. Transactions keep their label.
func (r *Registry) Remove(ctx context.Context, t models.TxType, name string) error {
	name, err := clean(t, name)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.cache.Categories(t)
	i := indexOf(list, name)
	if i < 0 {
		return nil
	}
	list = append(list[:i], list[i+1:]...)
	return r.persist(ctx, t, list)
}

type RenameResult struct {
	// Updated counts the transactions relabeled in memory.
	Updated int `json:"updated"`
	// Persisted is false when those transactions keep the old label in
	// storage, which is the case for cloud sessions.
	Persisted bool `json:"persisted"`
}

// Rename replaces oldName by newName, keeping its position. Guest sessions
// also store the relabeled transactions.
func (r *Registry) Rename(ctx context.Context, t models.TxType, oldName, newName string) (RenameResult, error) {
	oldName, err := clean(t, oldName)
	if err != nil {
		return RenameResult{}, err
	}
	newName, err = clean(t, newName)
	if err != nil {
		return RenameResult{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	guest := r.store.Mode() == store.ModeGuest
	if oldName == newName {
		return RenameResult{Persisted: guest}, nil
	}

	list := r.cache.Categories(t)
	i := indexOf(list, oldName)
	if i < 0 {
		return RenameResult{}, fmt.Errorf("%w: %s", ErrUnknown, oldName)
	}
	if indexOf(list, newName) >= 0 {
		return RenameResult{}, fmt.Errorf("%w: %s", ErrExists, newName)
	}
	list[i] = newName

	if err := r.store.SaveSettings(ctx, settingsPatch(t, list)); err != nil {
		return RenameResult{}, fmt.Errorf("save categories: %w", err)
	}
	touched := r.cache.RenameCategory(t, oldName, newName)

	res := RenameResult{Updated: len(touched), Persisted: guest}
	if !guest {
		return res, nil
	}
	for _, tx := range touched {
		if err := r.store.UpdateTransaction(ctx, tx); err != nil && !errors.Is(err, store.ErrNotFound) {
			return res, fmt.Errorf("relabel transaction %s: %w", tx.ID, err)
		}
	}
	return res, nil
}

func (r *Registry) persist(ctx context.Context, t models.TxType, list []string) error {
	if err := r.store.SaveSettings(ctx, settingsPatch(t, list)); err != nil {
		return fmt.Errorf("save categories: %w", err)
	}
	r.cache.SetCategories(t, list)
	return nil
}

func settingsPatch(t models.TxType, list []string) models.Settings {
	if t == models.Income {
		return models.Settings{IncomeCategories: list}
	}
	return models.Settings{ExpenseCategories: list}
}

func clean(t models.TxType, name string) (string, error) {
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidType, t)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidName
	}
	if utf8.RuneCountInString(name) > models.MaxCategoryLen {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidName, models.MaxCategoryLen)
	}
	return name, nil
}

func indexOf(list []string, name string) int {
	for i, c := range list {
		if c == name {
			return i
		}
	}
	return -1
}
