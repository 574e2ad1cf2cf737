package service

import (
	"sync"

	"github.com/bnema/videocut/internal/domain"
	"github.com/bnema/videocut/internal/port"
)

// subscriberBuffer is how many notifications a slow connection may fall
// behind before further ones are dropped for it.
const subscriberBuffer = 16

// EventBus fans notifications out to every live connection of an owner.
// Websocket and SSE handlers subscribe; the coordinator notifies.
type EventBus struct {
	subscribers map[string][]chan domain.Notification
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string][]chan domain.Notification),
	}
}

func (eb *EventBus) Subscribe(ownerID string) chan domain.Notification {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan domain.Notification, subscriberBuffer)
	eb.subscribers[ownerID] = append(eb.subscribers[ownerID], ch)
	return ch
}

func (eb *EventBus) Unsubscribe(ownerID string, ch chan domain.Notification) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subs := eb.subscribers[ownerID]
	for i, sub := range subs {
		if sub == ch {
			eb.subscribers[ownerID] = append(subs[:i], subs[i+1:]...)
			close(ch)
			break
		}
	}

	if len(eb.subscribers[ownerID]) == 0 {
		delete(eb.subscribers, ownerID)
	}
}

// Connected reports how many live connections ownerID has.
func (eb *EventBus) Connected(ownerID string) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers[ownerID])
}

// Notify delivers n to every connection of ownerID without blocking. It
// returns false when the owner has no connection or every buffer is full.
func (eb *EventBus) Notify(ownerID string, n domain.Notification) bool {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	delivered := false
	for _, ch := range eb.subscribers[ownerID] {
		select {
		case ch <- n:
			delivered = true
		default:
			// Drop event if subscriber is slow
		}
	}
	return delivered
}

var _ port.Notifier = (*EventBus)(nil)
