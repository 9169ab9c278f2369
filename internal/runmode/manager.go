// Package runmode implements Run Mode: interactive preview sessions over a
// workspace document. A session tracks the active frame, renders its
// components through the registry, dispatches clicks to the execution engine
// and frame navigation, and streams engine events to live subscribers.
package runmode

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/protocanvas/protocanvas/internal/engine"
	"github.com/protocanvas/protocanvas/internal/store"
	"github.com/protocanvas/protocanvas/pkg/models"
)

// DefaultSessionTTL is how long an untouched session survives.
const DefaultSessionTTL = 30 * time.Minute

// Documents is the document access run sessions need.
type Documents interface {
	Get(ctx context.Context, workspace string) (*models.Document, error)
	SetComponentValue(ctx context.Context, workspace, id, value string) (*models.ComponentRecord, error)
}

// Manager owns the live run sessions.
type Manager struct {
	docs         Documents
	engine       *engine.Engine
	hub          *Hub
	ttl          time.Duration
	freshHistory bool
	now          func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager and subscribes it to engine events.
// With freshHistory set, starting a session drops the workspace's
// session-scoped transcripts so every preview starts a new conversation.
func NewManager(docs Documents, eng *engine.Engine, ttl time.Duration, freshHistory bool) *Manager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	m := &Manager{
		docs:         docs,
		engine:       eng,
		hub:          NewHub(),
		ttl:          ttl,
		freshHistory: freshHistory,
		now:          time.Now,
		sessions:     make(map[string]*Session),
	}
	eng.Subscribe(m.forward)
	return m
}

// Hub returns the event hub of the manager.
func (m *Manager) Hub() *Hub { return m.hub }

// forward relays engine events to every session of the same workspace.
func (m *Manager) forward(ev engine.Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.Workspace != ev.Workspace {
			continue
		}
		out := Event{
			SessionID:       s.ID,
			Workspace:       ev.Workspace,
			FunctionalityID: ev.FunctionalityID,
			RunID:           ev.RunID,
			OutputID:        ev.OutputID,
			Content:         ev.Content,
			State:           ev.State,
			Time:            ev.Time,
		}
		switch ev.Type {
		case engine.EventOutput:
			out.Type = EventOutput
		case engine.EventState:
			out.Type = EventState
		default:
			continue
		}
		m.hub.Publish(out)
	}
}

// Start opens a session on workspace. The active frame is the home frame,
// else the first frame, else none (every component visible).
func (m *Manager) Start(ctx context.Context, workspace string) (*Session, error) {
	doc, err := m.docs.Get(ctx, workspace)
	if err != nil {
		return nil, err
	}

	active := ""
	if doc.HomeFrameID != "" && doc.Frame(doc.HomeFrameID) != nil {
		active = doc.HomeFrameID
	} else if len(doc.Frames) > 0 {
		active = doc.Frames[0].ID
	}

	if m.freshHistory {
		m.engine.ResetWorkspace(workspace)
	}

	now := m.now()
	s := &Session{
		ID:          uuid.New().String(),
		Workspace:   workspace,
		CreatedAt:   now.UTC(),
		mgr:         m,
		activeFrame: active,
		lastSeen:    now,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	log.Info().
		Str("session", s.ID).
		Str("workspace", workspace).
		Str("frame", active).
		Msg("Run session started")
	return s, nil
}

// Get returns a live session and marks it as used.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, &store.ErrNotFound{Entity: "run session", Key: id}
	}
	s.touch(m.now())
	return s, nil
}

// End closes a session and its subscriptions.
func (m *Manager) End(id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return &store.ErrNotFound{Entity: "run session", Key: id}
	}
	m.hub.Publish(Event{Type: EventClosed, SessionID: id})
	m.hub.CloseSession(id)
	log.Info().Str("session", id).Msg("Run session ended")
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Run expires idle sessions until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	interval := m.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	log.Info().Dur("ttl", m.ttl).Msg("Run session janitor started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Run session janitor stopped")
			return
		case <-ticker.C:
			m.Expire()
		}
	}
}

// Expire ends every session idle for longer than the TTL and returns how
// many were removed.
func (m *Manager) Expire() int {
	cutoff := m.now().Add(-m.ttl)

	m.mu.RLock()
	var stale []string
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	n := 0
	for _, id := range stale {
		if m.End(id) == nil {
			n++
		}
	}
	if n > 0 {
		log.Info().Int("expired", n).Msg("Run sessions expired")
	}
	return n
}

// Close ends every session.
func (m *Manager) Close() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	for _, id := range ids {
		m.End(id)
	}
}
