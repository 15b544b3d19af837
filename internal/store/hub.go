package store

import (
	"sync"

	"fintrack/internal/models"
)

// Hub shares change notifications between every Remote opened for the same
// user, so a write from one client reaches the subscribers of all of them.
type Hub struct {
	mu    sync.Mutex
	users map[string]*userTopics
}

type userTopics struct {
	refs  int
	txns  topic[[]models.Transaction]
	items topic[[]models.MarketItem]
}

func NewHub() *Hub {
	return &Hub{users: make(map[string]*userTopics)}
}

func (h *Hub) acquire(userID string) *userTopics {
	h.mu.Lock()
	defer h.mu.Unlock()
	ut, ok := h.users[userID]
	if !ok {
		ut = &userTopics{}
		h.users[userID] = ut
	}
	ut.refs++
	return ut
}

func (h *Hub) release(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ut, ok := h.users[userID]
	if !ok {
		return
	}
	ut.refs--
	if ut.refs <= 0 {
		delete(h.users, userID)
	}
}

// Subscribers reports how many live subscriptions a user has, for metrics
// and tests.
func (h *Hub) Subscribers(userID string) int {
	h.mu.Lock()
	ut, ok := h.users[userID]
	h.mu.Unlock()
	if !ok {
		return 0
	}
	return ut.txns.size() + ut.items.size()
}
