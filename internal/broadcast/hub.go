// Package broadcast fans solve and stream progress out to UI sessions.
//
// Delivery is at-least-once best-effort: a slow subscriber drops events
// rather than blocking producers, and the latest merged snapshot is
// retained per session so late subscribers are not starved.
package broadcast

import (
	"log/slog"
	"sync"
	"time"
)

// Payload is one progress/log/stream update. Producers writing to the
// same session use disjoint field sets by convention; overlapping fields
// are last-write-wins.
type Payload map[string]any

// subscriberBuffer bounds the per-subscriber channel. Events beyond it
// are dropped for that subscriber; the snapshot still catches them up.
const subscriberBuffer = 64

// cleanupGrace is how long a completed session's snapshot stays available
// for reconnecting observers before it is removed.
const cleanupGrace = 5 * time.Second

type session struct {
	snapshot    Payload
	subscribers map[int]chan Payload
	nextSub     int
}

// Hub delivers events to observers keyed by session id. Safe for
// concurrent use across sessions; per-session state is guarded by the
// hub mutex.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]*session
	logger   *slog.Logger

	// after is swappable so tests can trigger cleanup synchronously.
	after func(time.Duration, func()) *time.Timer
}

// NewHub creates a broadcast hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hub{
		sessions: make(map[string]*session),
		logger:   logger,
		after:    time.AfterFunc,
	}
}

// Broadcast merges payload over the running snapshot for sessionID and
// forwards it to all current subscribers. The session is created on first
// broadcast.
func (h *Hub) Broadcast(sessionID string, payload Payload) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.sessions[sessionID]
	if s == nil {
		s = &session{snapshot: Payload{}, subscribers: make(map[int]chan Payload)}
		h.sessions[sessionID] = s
	}

	for k, v := range payload {
		s.snapshot[k] = v
	}

	for id, ch := range s.subscribers {
		select {
		case ch <- payload:
		default:
			// Slow subscriber: drop rather than block the producer.
			h.logger.Warn("dropping broadcast event for slow subscriber",
				slog.String("session_id", sessionID),
				slog.Int("subscriber", id),
			)
		}
	}
}

// Snapshot returns a copy of the latest merged payload for a session, or
// nil if the session is unknown.
func (h *Hub) Snapshot(sessionID string) Payload {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.sessions[sessionID]
	if s == nil {
		return nil
	}
	out := make(Payload, len(s.snapshot))
	for k, v := range s.snapshot {
		out[k] = v
	}
	return out
}

// Subscribe attaches an observer to a session, creating the session if
// needed. The returned channel receives future payloads; the cancel func
// detaches and closes it.
func (h *Hub) Subscribe(sessionID string) (<-chan Payload, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.sessions[sessionID]
	if s == nil {
		s = &session{snapshot: Payload{}, subscribers: make(map[int]chan Payload)}
		h.sessions[sessionID] = s
	}

	id := s.nextSub
	s.nextSub++
	ch := make(chan Payload, subscriberBuffer)
	s.subscribers[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if cur := h.sessions[sessionID]; cur != nil {
			if sub, ok := cur.subscribers[id]; ok {
				delete(cur.subscribers, id)
				close(sub)
			}
		}
	}
	return ch, cancel
}

// Complete schedules removal of a session after the grace period, giving
// reconnecting observers a window to fetch the final snapshot.
func (h *Hub) Complete(sessionID string) {
	h.after(cleanupGrace, func() { h.Clear(sessionID) })
}

// Clear removes a session immediately and closes its subscriber channels.
func (h *Hub) Clear(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.sessions[sessionID]
	if s == nil {
		return
	}
	for _, ch := range s.subscribers {
		close(ch)
	}
	delete(h.sessions, sessionID)
}
