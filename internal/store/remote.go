package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"fintrack/internal/logger"
	"fintrack/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Remote is the authenticated backend. Records live in the shared database
// keyed by user id; writes are last-write-wins.
type Remote struct {
	db     *gorm.DB
	hub    *Hub
	userID string
	topics *userTopics

	mu     sync.Mutex
	closed bool
	subs   []func()
}

func NewRemote(db *gorm.DB, hub *Hub, userID string) *Remote {
	return &Remote{
		db:     db,
		hub:    hub,
		userID: userID,
		topics: hub.acquire(userID),
	}
}

func (r *Remote) Mode() Mode { return ModeCloud }

func (r *Remote) SubscribeTransactions(ctx context.Context) (*Subscription[[]models.Transaction], error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	sub, err := r.topics.txns.subscribe(ctx, func() ([]models.Transaction, error) {
		return r.loadTransactions(ctx)
	})
	if err != nil {
		return nil, err
	}
	r.track(sub.Cancel)
	return sub, nil
}

func (r *Remote) SubscribeMarketItems(ctx context.Context) (*Subscription[[]models.MarketItem], error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	sub, err := r.topics.items.subscribe(ctx, func() ([]models.MarketItem, error) {
		return r.loadMarketItems(ctx)
	})
	if err != nil {
		return nil, err
	}
	r.track(sub.Cancel)
	return sub, nil
}

// AddTransaction writes the whole record under its id, replacing any
// previous version.
func (r *Remote) AddTransaction(ctx context.Context, t models.Transaction) error {
	if err := r.check(); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.UserID = r.userID
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&t).Error; err != nil {
		return fmt.Errorf("add transaction: %w", err)
	}
	r.notifyTransactions(ctx)
	return nil
}

func (r *Remote) UpdateTransaction(ctx context.Context, t models.Transaction) error {
	if err := r.check(); err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND user_id = ?", t.ID, r.userID).
		Updates(map[string]interface{}{
			"description": t.Description,
			"amount":      t.Amount,
			"type":        t.Type,
			"category":    t.Category,
			"date":        t.Date,
		})
	if res.Error != nil {
		return fmt.Errorf("update transaction: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	r.notifyTransactions(ctx)
	return nil
}

// DeleteTransaction is silent when the id does not exist.
func (r *Remote) DeleteTransaction(ctx context.Context, id string) error {
	if err := r.check(); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, r.userID).
		Delete(&models.Transaction{}).Error; err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	r.notifyTransactions(ctx)
	return nil
}

func (r *Remote) AddMarketItems(ctx context.Context, items []models.MarketItem) error {
	if err := r.check(); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	rows := make([]models.MarketItem, len(items))
	for i, it := range items {
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		it.UserID = r.userID
		rows[i] = it
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(&rows, 100).Error
	})
	if err != nil {
		return fmt.Errorf("add market items: %w", err)
	}
	r.notifyMarketItems(ctx)
	return nil
}

// LoadSettings returns an empty document when nothing was saved yet.
func (r *Remote) LoadSettings(ctx context.Context) (models.Settings, error) {
	if err := r.check(); err != nil {
		return models.Settings{}, err
	}
	var row models.UserSettings
	err := r.db.WithContext(ctx).Where("user_id = ?", r.userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Settings{}, nil
	}
	if err != nil {
		return models.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return row.Settings(), nil
}

func (r *Remote) SaveSettings(ctx context.Context, patch models.Settings) error {
	if err := r.check(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.UserSettings
		err := tx.Where("user_id = ?", r.userID).First(&row).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("load settings: %w", err)
		}
		merged := row.Settings().Merge(patch)

		row.UserID = r.userID
		row.Theme = ""
		if merged.Theme != nil {
			row.Theme = string(*merged.Theme)
		}
		row.IncomeCategories = merged.IncomeCategories
		row.ExpenseCategories = merged.ExpenseCategories
		if err := tx.Save(&row).Error; err != nil {
			return fmt.Errorf("save settings: %w", err)
		}
		return nil
	})
}

// ClearAll never deletes cloud data.
func (r *Remote) ClearAll(ctx context.Context) error {
	return ErrManualDeletionRequired
}

// Close cancels the subscriptions opened through r. Other clients of the
// same user keep theirs.
func (r *Remote) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()

	for _, cancel := range subs {
		cancel()
	}
	r.hub.release(r.userID)
	return nil
}

func (r *Remote) check() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	return nil
}

func (r *Remote) track(cancel func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		go cancel()
		return
	}
	r.subs = append(r.subs, cancel)
}

func (r *Remote) loadTransactions(ctx context.Context) ([]models.Transaction, error) {
	list := []models.Transaction{}
	if err := r.db.WithContext(ctx).Where("user_id = ?", r.userID).
		Order("date desc").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	return list, nil
}

func (r *Remote) loadMarketItems(ctx context.Context) ([]models.MarketItem, error) {
	list := []models.MarketItem{}
	if err := r.db.WithContext(ctx).Where("user_id = ?", r.userID).
		Order("date desc").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("load market items: %w", err)
	}
	return list, nil
}

// notify* push the new state to every subscriber of this user. A failed
// reload does not fail the write that triggered it.
func (r *Remote) notifyTransactions(ctx context.Context) {
	err := r.topics.txns.refresh(func() ([]models.Transaction, error) {
		return r.loadTransactions(context.WithoutCancel(ctx))
	})
	if err != nil {
		logger.L().Warn().Err(err).Str("user_id", r.userID).Msg("transactions_broadcast_failed")
	}
}

func (r *Remote) notifyMarketItems(ctx context.Context) {
	err := r.topics.items.refresh(func() ([]models.MarketItem, error) {
		return r.loadMarketItems(context.WithoutCancel(ctx))
	})
	if err != nil {
		logger.L().Warn().Err(err).Str("user_id", r.userID).Msg("market_items_broadcast_failed")
	}
}
