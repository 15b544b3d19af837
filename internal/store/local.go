package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"fintrack/internal/models"

	"github.com/google/uuid"
)

// File keys of the device-local store, one per resource.
const (
	keyTransactions = "fs_transactions"
	keyMarketItems  = "fs_market_items"
	keyIncomeCats   = "fs_income_cats"
	keyExpenseCats  = "fs_expense_cats"
	keyTheme        = "fs_theme"
	keyUser         = "fs_user"
)

// Local is the guest backend: one JSON file per key under dir. Every
// operation re-reads its file, so the files stay the single source of truth.
type Local struct {
	dir string

	mu     sync.Mutex
	closed bool

	txns  topic[[]models.Transaction]
	items topic[[]models.MarketItem]
}

// OpenLocal prepares dir and records user as the active identity.
func OpenLocal(dir string, user models.User) (*Local, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create local dir: %w", err)
	}
	l := &Local{dir: dir}
	if err := l.write(keyUser, user); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Local) Mode() Mode { return ModeGuest }

func (l *Local) SubscribeTransactions(ctx context.Context) (*Subscription[[]models.Transaction], error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	return l.txns.subscribe(ctx, l.readTransactions)
}

func (l *Local) SubscribeMarketItems(ctx context.Context) (*Subscription[[]models.MarketItem], error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	return l.items.subscribe(ctx, l.readMarketItems)
}

// AddTransaction prepends t. An existing record with the same id is replaced.
func (l *Local) AddTransaction(ctx context.Context, t models.Transaction) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return l.mutateTransactions(func(list []models.Transaction) ([]models.Transaction, error) {
		out := make([]models.Transaction, 0, len(list)+1)
		out = append(out, t)
		for _, x := range list {
			if x.ID != t.ID {
				out = append(out, x)
			}
		}
		return out, nil
	})
}

func (l *Local) UpdateTransaction(ctx context.Context, t models.Transaction) error {
	return l.mutateTransactions(func(list []models.Transaction) ([]models.Transaction, error) {
		for i := range list {
			if list[i].ID == t.ID {
				list[i] = t
				return list, nil
			}
		}
		return nil, ErrNotFound
	})
}

func (l *Local) DeleteTransaction(ctx context.Context, id string) error {
	return l.mutateTransactions(func(list []models.Transaction) ([]models.Transaction, error) {
		out := list[:0]
		for _, x := range list {
			if x.ID != id {
				out = append(out, x)
			}
		}
		return out, nil
	})
}

// AddMarketItems appends the batch after the existing items.
func (l *Local) AddMarketItems(ctx context.Context, items []models.MarketItem) error {
	if len(items) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	list, err := l.readMarketItems()
	if err != nil {
		return err
	}
	for _, it := range items {
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		list = append(list, it)
	}
	if err := l.write(keyMarketItems, list); err != nil {
		return err
	}
	l.items.broadcast(list)
	return nil
}

func (l *Local) LoadSettings(ctx context.Context) (models.Settings, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return models.Settings{}, ErrClosed
	}

	var s models.Settings
	if err := l.read(keyIncomeCats, &s.IncomeCategories); err != nil {
		return s, err
	}
	if err := l.read(keyExpenseCats, &s.ExpenseCategories); err != nil {
		return s, err
	}
	var theme models.Theme
	if err := l.read(keyTheme, &theme); err != nil {
		return s, err
	}
	if theme != "" {
		s.Theme = &theme
	}
	return s, nil
}

// SaveSettings writes only the keys present in patch.
func (l *Local) SaveSettings(ctx context.Context, patch models.Settings) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}

	if patch.IncomeCategories != nil {
		if err := l.write(keyIncomeCats, patch.IncomeCategories); err != nil {
			return err
		}
	}
	if patch.ExpenseCategories != nil {
		if err := l.write(keyExpenseCats, patch.ExpenseCategories); err != nil {
			return err
		}
	}
	if patch.Theme != nil {
		if err := l.write(keyTheme, *patch.Theme); err != nil {
			return err
		}
	}
	return nil
}

// ClearAll removes transactions and market items. Settings are kept.
func (l *Local) ClearAll(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	for _, key := range []string{keyTransactions, keyMarketItems} {
		if err := os.Remove(l.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("clear %s: %w", key, err)
		}
	}
	l.txns.broadcast([]models.Transaction{})
	l.items.broadcast([]models.MarketItem{})
	return nil
}

func (l *Local) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	l.txns.cancelAll()
	l.items.cancelAll()
	return nil
}

func (l *Local) mutateTransactions(fn func([]models.Transaction) ([]models.Transaction, error)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	list, err := l.readTransactions()
	if err != nil {
		return err
	}
	list, err = fn(list)
	if err != nil {
		return err
	}
	if err := l.write(keyTransactions, list); err != nil {
		return err
	}
	l.txns.broadcast(list)
	return nil
}

func (l *Local) readTransactions() ([]models.Transaction, error) {
	list := []models.Transaction{}
	err := l.read(keyTransactions, &list)
	return list, err
}

func (l *Local) readMarketItems() ([]models.MarketItem, error) {
	list := []models.MarketItem{}
	err := l.read(keyMarketItems, &list)
	return list, err
}

func (l *Local) path(key string) string {
	return filepath.Join(l.dir, key+".json")
}

// read leaves v untouched when the key was never written.
func (l *Local) read(key string, v interface{}) error {
	b, err := os.ReadFile(l.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// write replaces the file atomically.
func (l *Local) write(key string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(l.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), l.path(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}
