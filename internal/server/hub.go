package server

import (
	"context"
	"sync"

	"parley/internal/domain"
)

const subscriberBuffer = 16

// Hub fans notifications out to connected subscribers. Delivery is best
// effort: offline accounts and full buffers drop events.
type Hub struct {
	mu   sync.Mutex
	subs map[domain.AccountID]map[chan domain.Notification]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[domain.AccountID]map[chan domain.Notification]struct{})}
}

var _ domain.NotificationChannel = (*Hub)(nil)

// Notify never blocks.
func (h *Hub) Notify(_ context.Context, account domain.AccountID, n domain.Notification) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[account] {
		select {
		case ch <- n:
		default:
		}
	}
	return nil
}

// Subscribe registers a listener for account. The returned func unsubscribes.
func (h *Hub) Subscribe(account domain.AccountID) (<-chan domain.Notification, func()) {
	ch := make(chan domain.Notification, subscriberBuffer)
	h.mu.Lock()
	if h.subs[account] == nil {
		h.subs[account] = make(map[chan domain.Notification]struct{})
	}
	h.subs[account][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[account], ch)
			if len(h.subs[account]) == 0 {
				delete(h.subs, account)
			}
		})
	}
}
