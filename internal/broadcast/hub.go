// Package broadcast fans store mutations out to live subscribers.
package broadcast

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/callsense/callsense/internal/core/domain"
)

const defaultBuffer = 64

// SnapshotSource runs fn with the current sessions while no mutation can
// interleave. The conversation store implements it.
type SnapshotSource interface {
	Snapshot(fn func([]domain.Session))
}

// Option configures a Hub.
type Option func(*Hub)

// WithBuffer sets the per-subscriber queue length. A subscriber whose queue
// is full when an event is published is disconnected.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// Hub is the subscriber registry. It implements ports.SessionObserver and is
// meant to be registered on the store whose snapshots it serves; store
// notifications arrive under the store lock, which keeps per-subscriber
// delivery in mutation order.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]*Subscription
	source SnapshotSource
	logger *slog.Logger
	buffer int
}

// New creates a hub that takes its subscribe snapshots from source.
func New(source SnapshotSource, logger *slog.Logger, opts ...Option) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		subs:   make(map[string]*Subscription),
		source: source,
		logger: logger,
		buffer: defaultBuffer,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscription is one live subscriber.
type Subscription struct {
	id     string
	events chan domain.Event
	hub    *Hub
}

// ID identifies the subscription in logs.
func (s *Subscription) ID() string { return s.id }

// Events yields the snapshot first, then incremental updates. The channel is
// closed when the subscription ends.
func (s *Subscription) Events() <-chan domain.Event { return s.events }

// Close unregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s, "closed")
}

// Subscribe registers a subscriber whose first event is a snapshot of every
// current session. The snapshot and the registration happen atomically with
// respect to store mutations, so no update is missed or duplicated.
func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{
		id:     uuid.NewString(),
		events: make(chan domain.Event, h.buffer),
		hub:    h,
	}

	h.source.Snapshot(func(sessions []domain.Session) {
		sub.events <- domain.Event{Type: domain.EventSnapshot, Sessions: sessions}

		h.mu.Lock()
		h.subs[sub.id] = sub
		h.mu.Unlock()
	})

	h.logger.Info("subscriber connected", slog.String("subscriber_id", sub.id))
	return sub
}

// Count returns the number of live subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// SessionChanged forwards an incremental update.
func (h *Hub) SessionChanged(session domain.Session) {
	h.publish(domain.Event{Type: domain.EventSessionChanged, Session: &session})
}

// SessionEnded forwards a session-ended event.
func (h *Hub) SessionEnded(session domain.Session) {
	h.publish(domain.Event{Type: domain.EventSessionEnded, Session: &session})
}

// CloseAll disconnects every subscriber.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		h.removeLocked(sub, "shutdown")
	}
}

func (h *Hub) publish(ev domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs {
		select {
		case sub.events <- ev:
		default:
			h.removeLocked(sub, "subscriber too slow")
		}
	}
}

func (h *Hub) remove(sub *Subscription, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub, reason)
}

func (h *Hub) removeLocked(sub *Subscription, reason string) {
	if _, ok := h.subs[sub.id]; !ok {
		return
	}
	delete(h.subs, sub.id)
	close(sub.events)
	h.logger.Info("subscriber disconnected",
		slog.String("subscriber_id", sub.id),
		slog.String("reason", reason),
	)
}
