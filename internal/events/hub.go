// Package events fans server-side events out to websocket subscribers.
package events

import (
	"encoding/json"
	log "log/slog"
	"sync"
	"time"

	"voxrelay/pkg/protocol"
)

// Publisher is what the registry handlers and the pipeline depend on.
type Publisher interface {
	Publish(ev protocol.Event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(protocol.Event) {}

const subscriberBuffer = 64

type subscriber struct {
	ch chan []byte
}

// Hub is a fan-out of JSON-encoded events. A subscriber whose buffer is full
// is dropped rather than allowed to stall publishers.
type Hub struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
	now    func() time.Time
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[*subscriber]struct{}),
		now:  time.Now,
	}
}

func (h *Hub) Publish(ev protocol.Event) {
	if ev.Time.IsZero() {
		ev.Time = h.now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error("Failed to encode event", "kind", ev.Kind, "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.ch <- data:
		default:
			delete(h.subs, s)
			close(s.ch)
			log.Warn("Dropped slow event subscriber", "remaining", len(h.subs))
		}
	}
}

// Subscribe returns a channel of encoded events and a cancel func. The
// channel is closed on cancel, on Close, or when the subscriber lags.
func (h *Hub) Subscribe() (<-chan []byte, func()) {
	s := &subscriber{ch: make(chan []byte, subscriberBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(s.ch)
		return s.ch, func() {}
	}
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	return s.ch, func() { h.remove(s) }
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.ch)
	}
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every subscriber; later subscribers get a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for s := range h.subs {
		delete(h.subs, s)
		close(s.ch)
	}
}
