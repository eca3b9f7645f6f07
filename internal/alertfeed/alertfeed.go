// Package alertfeed fans high-priority events out to connected ops clients.
// Publishing never blocks: a slow subscriber loses events instead of
// stalling an SMS turn.
package alertfeed

import (
	"sync"
	"time"
)

// Feed event kinds.
const (
	KindCHWAlert     = "chw_alert"
	KindDangerFlag   = "danger_flag"
	KindFarmReferral = "farm_referral"
)

const subscriberBuffer = 16

// Event is one feed entry. Body is already masked; no raw identifiers.
type Event struct {
	Kind string    `json:"kind"`
	Body string    `json:"body"`
	At   time.Time `json:"at"`
}

// Hub broadcasts events to all current subscribers.
type Hub struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int

	onCount func(n int)
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Event)}
}

// SetCountHook installs a callback invoked with the subscriber count after
// every subscribe/unsubscribe, used to drive the feed gauge.
func (h *Hub) SetCountHook(fn func(n int)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onCount = fn
}

// Subscribe registers a new listener. The returned cancel func is
// idempotent and closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	id := h.next
	h.next++
	ch := make(chan Event, subscriberBuffer)
	h.subs[id] = ch
	hook, n := h.onCount, len(h.subs)
	h.mu.Unlock()

	if hook != nil {
		hook(n)
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			hook, n := h.onCount, len(h.subs)
			h.mu.Unlock()
			close(ch)
			if hook != nil {
				hook(n)
			}
		})
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber that has buffer room.
func (h *Hub) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// SubscriberCount reports the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
