package server

import (
	"sync"

	"github.com/five82/mochiyoru/internal/gateway"
)

const subscriberBuffer = 32

// Subscription is one open feed connection. Done is closed when the hub
// drops it, either on unsubscribe or for falling behind.
type Subscription struct {
	send   chan gateway.FeedMessage
	closed chan struct{}
	once   sync.Once
}

// Events delivers the group's change events.
func (s *Subscription) Events() <-chan gateway.FeedMessage { return s.send }

// Done is closed once the subscription ends.
func (s *Subscription) Done() <-chan struct{} { return s.closed }

func (s *Subscription) close() {
	s.once.Do(func() { close(s.closed) })
}

// Hub fans change events out to the feed subscribers of each group.
type Hub struct {
	mu     sync.RWMutex
	groups map[string]map[*Subscription]struct{}

	// onPublish is invoked once per published event.
	onPublish func(kind string)
	// onCount reports the open subscriber total after every change.
	onCount func(n int)
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{groups: make(map[string]map[*Subscription]struct{})}
}

// Subscribe registers a subscriber for groupID. The returned func removes it.
func (h *Hub) Subscribe(groupID string) (*Subscription, func()) {
	sub := &Subscription{
		send:   make(chan gateway.FeedMessage, subscriberBuffer),
		closed: make(chan struct{}),
	}
	h.mu.Lock()
	subs := h.groups[groupID]
	if subs == nil {
		subs = make(map[*Subscription]struct{})
		h.groups[groupID] = subs
	}
	subs[sub] = struct{}{}
	n := h.countLocked()
	h.mu.Unlock()
	h.reportCount(n)

	return sub, func() {
		h.mu.Lock()
		if subs := h.groups[groupID]; subs != nil {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(h.groups, groupID)
			}
		}
		n := h.countLocked()
		h.mu.Unlock()
		sub.close()
		h.reportCount(n)
	}
}

// Publish delivers msg to every subscriber of groupID. A subscriber whose
// buffer is full is closed rather than blocking the writer.
func (h *Hub) Publish(groupID string, msg gateway.FeedMessage) {
	h.mu.RLock()
	for sub := range h.groups[groupID] {
		select {
		case sub.send <- msg:
		default:
			sub.close()
		}
	}
	h.mu.RUnlock()
	if h.onPublish != nil {
		h.onPublish(msg.Kind)
	}
}

// Subscribers reports the number of open subscribers for groupID.
func (h *Hub) Subscribers(groupID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[groupID])
}

func (h *Hub) countLocked() int {
	n := 0
	for _, subs := range h.groups {
		n += len(subs)
	}
	return n
}

func (h *Hub) reportCount(n int) {
	if h.onCount != nil {
		h.onCount(n)
	}
}
