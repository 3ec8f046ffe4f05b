package realtime

import (
	"context"
	"sync"

	"github.com/zhouzirui/ai-advisor/backend/internal/metrics"
)

const subscriberBuffer = 16

type subscriber struct {
	ch   chan Event
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// Hub is an in-process Broker. Sends never block: a subscriber whose buffer
// is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	closed bool
}

var _ Broker = (*Hub)(nil)

// NewHub returns an empty in-process broker.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*subscriber]struct{})}
}

// Publish delivers event to every current subscriber of its session.
func (h *Hub) Publish(_ context.Context, event Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return ErrClosed
	}

	for sub := range h.subs[event.SessionID] {
		select {
		case sub.ch <- event:
		default:
			metrics.RealtimeDropped.Inc()
		}
	}
	return nil
}

// Subscribe registers a new subscriber for sessionID. The subscription also
// ends when ctx is cancelled.
func (h *Hub) Subscribe(ctx context.Context, sessionID string) (<-chan Event, func(), error) {
	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, nil, ErrClosed
	}
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[*subscriber]struct{})
	}
	h.subs[sessionID][sub] = struct{}{}
	h.mu.Unlock()
	metrics.RealtimeSubscribers.Inc()

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			h.mu.Lock()
			if set, ok := h.subs[sessionID]; ok {
				delete(set, sub)
				if len(set) == 0 {
					delete(h.subs, sessionID)
				}
			}
			h.mu.Unlock()
			sub.close()
			metrics.RealtimeSubscribers.Dec()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()

	return sub.ch, cancel, nil
}

// Subscribers reports how many subscriptions are open for sessionID.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}

// Close ends every subscription.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	for _, set := range h.subs {
		for sub := range set {
			sub.close()
		}
	}
	h.subs = make(map[string]map[*subscriber]struct{})
	return nil
}
