package store

// The in-memory store is used when no database is configured (local dev,
// tests). With a data directory it snapshots to a JSON file so data
// survives restarts.

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/protocanvas/protocanvas/pkg/models"
	"github.com/rs/zerolog/log"
)

// snapshot is the JSON-serializable shape written to disk.
type snapshot struct {
	Documents map[string]json.RawMessage `json:"documents"` // key: workspace
	Histories transcripts                `json:"histories"`
}

// MemoryStore implements Store with in-memory maps. Documents are kept in
// their encoded form so callers never share mutable state with the store.
type MemoryStore struct {
	mu        sync.RWMutex
	documents map[string]json.RawMessage
	histories transcripts

	// Persistence
	snapshotPath string        // empty = no persistence
	saveDelay    time.Duration // debounce window
	saveMu       sync.Mutex    // guards file writes
	saveCh       chan struct{}
	doneCh       chan struct{}
}

// NewMemoryStore creates a new in-memory store.
// If dataDir is non-empty, data is persisted to dataDir/data.json.
func NewMemoryStore(dataDir string) *MemoryStore {
	m := &MemoryStore{
		documents: make(map[string]json.RawMessage),
		histories: make(transcripts),
		saveDelay: 500 * time.Millisecond,
		saveCh:    make(chan struct{}, 1),
		doneCh:    make(chan struct{}),
	}

	if dataDir != "" {
		m.snapshotPath = filepath.Join(dataDir, "data.json")
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			log.Warn().Err(err).Str("dir", dataDir).Msg("Cannot create data dir, persistence disabled")
			m.snapshotPath = ""
		}
	}

	if m.snapshotPath != "" {
		m.loadSnapshot()
		go m.saveLoop()
	}

	log.Info().Str("snapshot", m.snapshotPath).Msg("Memory store configured")
	return m
}

// requestSave signals the background goroutine to persist data.
// Non-blocking: coalesces multiple rapid writes into one disk flush.
func (m *MemoryStore) requestSave() {
	if m.snapshotPath == "" {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
	}
}

// saveLoop debounces save requests (max 1 write per saveDelay).
func (m *MemoryStore) saveLoop() {
	for {
		select {
		case <-m.doneCh:
			return
		case <-m.saveCh:
			select {
			case <-m.doneCh:
				return
			case <-time.After(m.saveDelay):
			}
			m.saveSnapshot()
		}
	}
}

// saveSnapshot persists all data to disk as JSON.
func (m *MemoryStore) saveSnapshot() {
	m.mu.RLock()
	data, err := json.MarshalIndent(snapshot{Documents: m.documents, Histories: m.histories}, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal snapshot")
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	// Write to temp file then rename for atomicity
	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.Error().Err(err).Str("path", tmp).Msg("Failed to write snapshot tmp")
		return
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to rename snapshot")
		return
	}
	log.Debug().Str("path", m.snapshotPath).Msg("Snapshot saved")
}

// loadSnapshot reads data from disk on startup.
func (m *MemoryStore) loadSnapshot() {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", m.snapshotPath).Msg("No snapshot file found, starting fresh")
			return
		}
		log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Failed to read snapshot")
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to parse snapshot, starting fresh")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if snap.Documents != nil {
		m.documents = snap.Documents
	}
	if snap.Histories != nil {
		m.histories = snap.Histories
	}

	log.Info().
		Int("documents", len(m.documents)).
		Int("histories", len(m.histories)).
		Str("path", m.snapshotPath).
		Msg("Snapshot loaded")
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// Close stops the save loop and forces a final snapshot write.
// Safe to call multiple times (second call is a no-op).
func (m *MemoryStore) Close() error {
	select {
	case <-m.doneCh:
		return nil
	default:
		close(m.doneCh)
	}

	if m.snapshotPath != "" {
		log.Info().Msg("Flushing final snapshot before shutdown...")
		m.saveSnapshot()
	}
	log.Info().Msg("Memory store closed")
	return nil
}

func (m *MemoryStore) Migrate(_ context.Context) error { return nil }

// ── Document Store ──────────────────────────────────────────

func (m *MemoryStore) Load(_ context.Context, workspace string) (*models.Document, error) {
	m.mu.RLock()
	raw, ok := m.documents[workspace]
	m.mu.RUnlock()
	if !ok {
		return nil, &ErrNotFound{Entity: "document", Key: workspace}
	}

	var doc models.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (m *MemoryStore) Save(_ context.Context, doc *models.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.documents[doc.ID] = raw
	m.mu.Unlock()
	m.requestSave()
	return nil
}

// ── History Store ───────────────────────────────────────────

func (m *MemoryStore) History(_ context.Context, workspace, functionalityID string) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.histories.get(workspace, functionalityID), nil
}

func (m *MemoryStore) Append(_ context.Context, workspace, functionalityID string, msgs ...models.Message) error {
	m.mu.Lock()
	m.histories.append(workspace, functionalityID, msgs)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) Reset(_ context.Context, workspace, functionalityID string) error {
	m.mu.Lock()
	m.histories.reset(workspace, functionalityID)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

// ── Ephemeral History ───────────────────────────────────────

// EphemeralHistory is a HistoryStore that lives only as long as the process
// and is never written to the snapshot. It backs the default behaviour where
// each Run Mode session starts a fresh conversation.
type EphemeralHistory struct {
	mu        sync.RWMutex
	histories transcripts
}

func NewEphemeralHistory() *EphemeralHistory {
	return &EphemeralHistory{histories: make(transcripts)}
}

func (h *EphemeralHistory) History(_ context.Context, workspace, functionalityID string) ([]models.Message, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.histories.get(workspace, functionalityID), nil
}

func (h *EphemeralHistory) Append(_ context.Context, workspace, functionalityID string, msgs ...models.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.histories.append(workspace, functionalityID, msgs)
	return nil
}

func (h *EphemeralHistory) Reset(_ context.Context, workspace, functionalityID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.histories.reset(workspace, functionalityID)
	return nil
}

// ResetWorkspace drops every transcript of a workspace.
func (h *EphemeralHistory) ResetWorkspace(workspace string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.histories, workspace)
}
