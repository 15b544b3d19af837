package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"fintrack/internal/category"
	"fintrack/internal/logger"
	"fintrack/internal/models"
	"fintrack/internal/parser"
	"fintrack/internal/store"
	"fintrack/internal/util"
)

var ErrInvalidTransaction = errors.New("session: invalid transaction")

// Defaults fill settings a session never saved.
type Defaults struct {
	Income  []string
	Expense []string
	// Policy applies to labels met by imports and scans.
	Policy parser.CategoryPolicy
}

func (d Defaults) income() []string {
	if len(d.Income) == 0 {
		return models.DefaultIncomeCategories()
	}
	return d.Income
}

func (d Defaults) expense() []string {
	if len(d.Expense) == 0 {
		return models.DefaultExpenseCategories()
	}
	return d.Expense
}

// Session ties one user's Store to its State. Store snapshots flow into the
// State from a single goroutine; edits go to the Store first and are then
// mirrored into the State.
type Session struct {
	ID         string
	User       models.User
	Store      store.Store
	State      *State
	Categories *category.Registry

	policy   parser.CategoryPolicy
	cancel   context.CancelFunc
	done     chan struct{}
	lastSeen atomic.Int64
	holds    atomic.Int32
}

// Start loads settings, applies the first snapshot of each collection and
// keeps following the store until ctx ends or Close is called.
func Start(ctx context.Context, id string, user models.User, st store.Store, d Defaults) (*Session, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		ID:    id,
		User:  user,
		Store: st,
		State:  NewState(),
		policy: d.Policy,
		done:   make(chan struct{}),
	}
	s.cancel = cancel
	s.Categories = category.NewRegistry(st, s.State)
	s.Touch()

	settings, err := st.LoadSettings(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if settings.IncomeCategories == nil {
		settings.IncomeCategories = d.income()
	}
	if settings.ExpenseCategories == nil {
		settings.ExpenseCategories = d.expense()
	}
	s.State.Dispatch(Action{Type: SettingsLoaded, Settings: settings})

	txSub, err := st.SubscribeTransactions(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe transactions: %w", err)
	}
	itemSub, err := st.SubscribeMarketItems(ctx)
	if err != nil {
		txSub.Cancel()
		cancel()
		return nil, fmt.Errorf("subscribe market items: %w", err)
	}

	// the first snapshot is already buffered
	s.State.Dispatch(Action{Type: TransactionsLoaded, Transactions: <-txSub.Updates()})
	s.State.Dispatch(Action{Type: MarketItemsLoaded, MarketItems: <-itemSub.Updates()})

	go s.follow(ctx, txSub, itemSub)
	return s, nil
}

func (s *Session) follow(ctx context.Context, txSub *store.Subscription[[]models.Transaction], itemSub *store.Subscription[[]models.MarketItem]) {
	defer close(s.done)
	defer txSub.Cancel()
	defer itemSub.Cancel()

	txCh, itemCh := txSub.Updates(), itemSub.Updates()
	for txCh != nil || itemCh != nil {
		select {
		case <-ctx.Done():
			return
		case list, ok := <-txCh:
			if !ok {
				txCh = nil
				continue
			}
			s.State.Dispatch(Action{Type: TransactionsLoaded, Transactions: list})
		case list, ok := <-itemCh:
			if !ok {
				itemCh = nil
				continue
			}
			s.State.Dispatch(Action{Type: MarketItemsLoaded, MarketItems: list})
		}
	}
}

// Touch marks the session as used now.
func (s *Session) Touch() { s.lastSeen.Store(time.Now().UnixNano()) }

func (s *Session) LastSeen() time.Time { return time.Unix(0, s.lastSeen.Load()) }

// Hold keeps the session out of idle sweeps until release is called.
// Long-lived readers such as update streams hold the session they read.
func (s *Session) Hold() (release func()) {
	s.holds.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			s.Touch()
			s.holds.Add(-1)
		})
	}
}

func (s *Session) held() bool { return s.holds.Load() > 0 }

// Close stops following the store and closes it.
func (s *Session) Close() error {
	s.cancel()
	<-s.done
	return s.Store.Close()
}

// Mode reports whether the session is guest or cloud.
func (s *Session) Mode() store.Mode { return s.Store.Mode() }

// SaveTransaction adds t, or replaces the record with the same id.
func (s *Session) SaveTransaction(ctx context.Context, t models.Transaction, isNew bool) (models.Transaction, error) {
	if err := validate(t); err != nil {
		return t, err
	}
	var err error
	if isNew {
		if t.ID == "" {
			t.ID = newID()
		}
		err = s.Store.AddTransaction(ctx, t)
	} else {
		err = s.Store.UpdateTransaction(ctx, t)
	}
	if err != nil {
		return t, err
	}
	s.State.Dispatch(Action{Type: TransactionSaved, Transaction: t})
	return t, nil
}

func (s *Session) DeleteTransaction(ctx context.Context, id string) error {
	if err := s.Store.DeleteTransaction(ctx, id); err != nil {
		return err
	}
	s.State.Dispatch(Action{Type: TransactionDeleted, ID: id})
	return nil
}

// SaveReceipt stores a scanned grocery receipt: its expense and its items.
func (s *Session) SaveReceipt(ctx context.Context, tx models.Transaction, items []models.MarketItem) error {
	if _, err := s.SaveTransaction(ctx, tx, true); err != nil {
		return err
	}
	return s.Store.AddMarketItems(ctx, items)
}

func (s *Session) SetTheme(ctx context.Context, th models.Theme) error {
	if !th.Valid() {
		return fmt.Errorf("invalid theme %q", th)
	}
	if err := s.Store.SaveSettings(ctx, models.Settings{Theme: &th}); err != nil {
		return err
	}
	s.State.Dispatch(Action{Type: ThemeChanged, Theme: th})
	return nil
}

// Settings returns the effective settings document.
func (s *Session) Settings() models.Settings {
	snap := s.State.Snapshot()
	th := snap.Theme
	return models.Settings{
		Theme:             &th,
		IncomeCategories:  snap.IncomeCategories,
		ExpenseCategories: snap.ExpenseCategories,
	}
}

// Clear empties a guest session. Cloud sessions get ErrManualDeletionRequired
// and keep their data.
func (s *Session) Clear(ctx context.Context) error {
	if err := s.Store.ClearAll(ctx); err != nil {
		return err
	}
	s.State.Dispatch(Action{Type: Cleared})
	return nil
}

// ParseImport parses raw statement text against the current categories.
// Nothing is stored.
func (s *Session) ParseImport(raw string) parser.Result {
	return parser.ParseDelimitedText(raw, parser.Options{
		Income:  s.State.Categories(models.Income),
		Expense: s.State.Categories(models.Expense),
		Policy:  s.policy,
	})
}

// CategoryPolicy is how imports and scans of this session treat unknown
// labels.
func (s *Session) CategoryPolicy() parser.CategoryPolicy { return s.policy }

// Commit registers the new categories of an import and stores its
// candidates. It returns how many transactions were stored.
func (s *Session) Commit(ctx context.Context, res parser.Result) (int, error) {
	for _, nc := range res.NewCategories {
		if _, err := s.Categories.Add(ctx, nc.Type, nc.Name); err != nil {
			return 0, fmt.Errorf("register category %s: %w", nc.Name, err)
		}
	}
	n := 0
	for _, c := range res.Candidates {
		if _, err := s.SaveTransaction(ctx, c.Transaction(), true); err != nil {
			if errors.Is(err, ErrInvalidTransaction) {
				logger.L().Debug().Err(err).Str("session_id", s.ID).Msg("import_row_rejected")
				continue
			}
			return n, err
		}
		n++
	}
	return n, nil
}

// Import parses raw and, when commit is set, stores the result.
func (s *Session) Import(ctx context.Context, raw string, commit bool) (parser.Result, int, error) {
	res := s.ParseImport(raw)
	if !commit {
		return res, 0, nil
	}
	n, err := s.Commit(ctx, res)
	return res, n, err
}

func validate(t models.Transaction) error {
	if !t.Type.Valid() {
		return fmt.Errorf("%w: type %q", ErrInvalidTransaction, t.Type)
	}
	if err := util.ValidateAmount(t.Amount); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	if t.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidTransaction)
	}
	return nil
}
