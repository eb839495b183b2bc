// Package events fans controller state snapshots out to subscribers.
package events

import (
	"sync"

	"github.com/micro-nova/amplipi-preamp/internal/models"
)

const subBufferSize = 8

// Hub delivers every published snapshot to each subscriber without blocking
// the publisher. A subscriber that falls behind loses its oldest queued
// snapshot, so the newest one always gets through.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]chan models.State
	latest models.State
	seen   bool
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]chan models.State)}
}

// Subscribe registers id. The channel is primed with the last published
// snapshot, if any. Subscribing an id twice replaces the old subscription.
func (h *Hub) Subscribe(id string) <-chan models.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.subs[id]; ok {
		close(old)
	}
	ch := make(chan models.State, subBufferSize)
	if h.seen {
		ch <- h.latest
	}
	h.subs[id] = ch
	return ch
}

// Unsubscribe removes id and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Publish implements preamp.Publisher.
func (h *Hub) Publish(st models.State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest, h.seen = st, true
	for _, ch := range h.subs {
		select {
		case ch <- st:
			continue
		default:
		}
		// Full: drop the oldest and retry once. Only Publish sends, under mu.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- st:
		default:
		}
	}
}

// Latest returns the last published snapshot.
func (h *Hub) Latest() (models.State, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest, h.seen
}

// SubscriberCount returns the number of subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
