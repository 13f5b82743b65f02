// Package hub fans newly captured requests out to the live subscribers of a
// bin. Delivery is best-effort: each subscriber owns a bounded buffer, and a
// subscriber that cannot keep up is dropped rather than stalling the
// publisher. Persisted history remains the source of truth for catch-up.
package hub

import (
	"sync"

	"go.uber.org/zap"

	"github.com/hookbin/hookbin/internal/store"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 100

type EventKind int

const (
	// EventRequest carries one captured request.
	EventRequest EventKind = iota
	// EventBinClosed is the terminal signal sent when a bin is deleted.
	EventBinClosed
)

type Event struct {
	Kind    EventKind
	Request *store.CapturedRequest
}

// Subscription is one live observer of a bin. Events arrive on C; the channel
// is closed when the subscriber is dropped, its bin is deleted, or Close is
// called.
type Subscription struct {
	C <-chan Event

	hub   *Hub
	binID string
	ch    chan Event
}

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s.binID, s)
}

type Hub struct {
	buffer int
	log    *zap.Logger

	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

func New(buffer int, log *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		buffer: buffer,
		log:    log,
		subs:   make(map[string]map[*Subscription]struct{}),
	}
}

// Subscribe registers a new observer for binID. Callers are expected to have
// verified that the bin exists; the hub itself holds no storage state.
func (h *Hub) Subscribe(binID string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, h.buffer)
	sub := &Subscription{C: ch, hub: h, binID: binID, ch: ch}
	if h.subs[binID] == nil {
		h.subs[binID] = make(map[*Subscription]struct{})
	}
	h.subs[binID][sub] = struct{}{}
	return sub
}

func (h *Hub) unsubscribe(binID string, sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.subs[binID]
	if set == nil {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	close(sub.ch)
	if len(set) == 0 {
		delete(h.subs, binID)
	}
}

// Publish delivers req to every active subscriber of its bin, in call order.
// The send never blocks: a subscriber whose buffer is full is disconnected.
func (h *Hub) Publish(binID string, req *store.CapturedRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.subs[binID]
	for sub := range set {
		select {
		case sub.ch <- Event{Kind: EventRequest, Request: req}:
		default:
			delete(set, sub)
			close(sub.ch)
			h.log.Warn("dropping slow subscriber", zap.String("bin_id", binID))
		}
	}
	if len(set) == 0 {
		delete(h.subs, binID)
	}
}

// CloseBin tears down every subscription for a deleted bin. Subscribers get a
// terminal EventBinClosed (buffer permitting) followed by channel close.
func (h *Hub) CloseBin(binID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs[binID] {
		select {
		case sub.ch <- Event{Kind: EventBinClosed}:
		default:
		}
		close(sub.ch)
	}
	delete(h.subs, binID)
}

// Subscribers reports the number of active subscriptions for a bin.
func (h *Hub) Subscribers(binID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[binID])
}
