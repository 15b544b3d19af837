// Package store persists a session's transactions, market items and
// settings. Guest sessions write to device-local files, authenticated
// sessions to the shared database; both are read through subscriptions.
package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"fintrack/internal/models"

	"gorm.io/gorm"
)

// Mode is the backend a Store writes to. It never changes for a Store.
type Mode string

const (
	ModeGuest Mode = "guest"
	ModeCloud Mode = "cloud"
)

var (
	ErrManualDeletionRequired = errors.New("store: clearing cloud data requires manual deletion")
	ErrNotFound               = errors.New("store: record not found")
	ErrClosed                 = errors.New("store: closed")
)

// Store is the per-session persistence contract. Writes return once the
// backend accepted them; the resulting state reaches callers through the
// subscriptions, never through the write call.
type Store interface {
	SubscribeTransactions(ctx context.Context) (*Subscription[[]models.Transaction], error)
	SubscribeMarketItems(ctx context.Context) (*Subscription[[]models.MarketItem], error)

	AddTransaction(ctx context.Context, t models.Transaction) error
	UpdateTransaction(ctx context.Context, t models.Transaction) error
	DeleteTransaction(ctx context.Context, id string) error

	// AddMarketItems stores the items of one receipt as a batch.
	AddMarketItems(ctx context.Context, items []models.MarketItem) error

	LoadSettings(ctx context.Context) (models.Settings, error)
	// SaveSettings merges patch into the stored document.
	SaveSettings(ctx context.Context, patch models.Settings) error

	ClearAll(ctx context.Context) error

	Mode() Mode
	Close() error
}

// Backends carries what Open needs for either mode.
type Backends struct {
	DB       *gorm.DB
	Hub      *Hub
	LocalDir string
}

// Open returns the Store for user: local files for guests, the database
// otherwise.
func Open(user models.User, b Backends) (Store, error) {
	if user.ID == "" {
		return nil, errors.New("store: user without id")
	}
	if user.IsGuest {
		if b.LocalDir == "" {
			return nil, errors.New("store: local dir not configured")
		}
		return OpenLocal(filepath.Join(b.LocalDir, safeName(user.ID)), user)
	}
	if b.DB == nil || b.Hub == nil {
		return nil, fmt.Errorf("store: cloud backend not configured for %s", user.ID)
	}
	return NewRemote(b.DB, b.Hub, user.ID), nil
}

// safeName keeps a user id usable as a single path element.
func safeName(id string) string {
	out := make([]rune, 0, len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
