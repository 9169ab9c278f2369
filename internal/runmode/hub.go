package runmode

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/protocanvas/protocanvas/internal/engine"
)

// ── Event types ─────────────────────────────────────────────

// EventType describes what changed in a run session.
type EventType string

const (
	EventOutput   EventType = "output"
	EventState    EventType = "state"
	EventNavigate EventType = "navigate"
	EventClosed   EventType = "closed"
)

// Event is pushed to live subscribers of a session.
type Event struct {
	Type            EventType        `json:"type"`
	SessionID       string           `json:"sessionId"`
	Workspace       string           `json:"workspace"`
	FrameID         string           `json:"frameId,omitempty"`
	FunctionalityID string           `json:"functionalityId,omitempty"`
	RunID           string           `json:"runId,omitempty"`
	OutputID        string           `json:"outputId,omitempty"`
	Content         string           `json:"content,omitempty"`
	State           *engine.RunState `json:"state,omitempty"`
	Time            time.Time        `json:"time"`
}

const subscriberBuffer = 64

// ── Hub ──────────────────────────────────────────────────────

// Hub fans session events out to subscribers. Slow subscribers lose events
// rather than stall the publisher.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{} // key: session ID
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe returns a channel of events for sessionID and a function that
// cancels the subscription and closes the channel.
func (h *Hub) Subscribe(sessionID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	set, ok := h.subs[sessionID]
	if !ok {
		set = make(map[chan Event]struct{})
		h.subs[sessionID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[sessionID]; ok {
				if _, ok := set[ch]; ok {
					delete(set, ch)
					close(ch)
				}
				if len(set) == 0 {
					delete(h.subs, sessionID)
				}
			}
		})
	}
}

// Publish delivers ev to every subscriber of ev.SessionID.
func (h *Hub) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[ev.SessionID] {
		select {
		case ch <- ev:
		default:
			log.Debug().Str("session", ev.SessionID).Str("type", string(ev.Type)).Msg("Subscriber full, event dropped")
		}
	}
}

// CloseSession closes every subscription of sessionID.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[sessionID] {
		close(ch)
	}
	delete(h.subs, sessionID)
}

// Subscribers returns the number of live subscriptions of sessionID.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}
