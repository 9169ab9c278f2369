// Package store provides the persistence interfaces and implementations for
// canvas documents and functionality chat histories.
// The in-memory store snapshots to a JSON file; the SQL store runs on SQLite
// or PostgreSQL.
package store

import (
	"context"

	"github.com/protocanvas/protocanvas/pkg/models"
)

// Store is the primary storage interface for the server.
// All service code depends on the narrower interfaces below, so the
// in-memory store (tests, local dev) and the SQL store are interchangeable.
type Store interface {
	DocumentStore
	HistoryStore

	// Ping checks if the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error

	// Migrate creates the schema, where there is one.
	Migrate(ctx context.Context) error
}

// ── Document Store ──────────────────────────────────────────

// DocumentStore persists one canvas document per workspace.
// Load on a workspace that was never saved returns *ErrNotFound.
type DocumentStore interface {
	Load(ctx context.Context, workspace string) (*models.Document, error)
	Save(ctx context.Context, doc *models.Document) error
}

// ── History Store ───────────────────────────────────────────

// HistoryStore keeps the append-only chat transcript of each functionality.
type HistoryStore interface {
	History(ctx context.Context, workspace, functionalityID string) ([]models.Message, error)
	Append(ctx context.Context, workspace, functionalityID string, msgs ...models.Message) error
	Reset(ctx context.Context, workspace, functionalityID string) error
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}

// transcripts holds conversation histories by workspace, then by
// functionality.
type transcripts map[string]map[string][]models.Message

func (t transcripts) get(workspace, functionalityID string) []models.Message {
	return append([]models.Message(nil), t[workspace][functionalityID]...)
}

func (t transcripts) append(workspace, functionalityID string, msgs []models.Message) {
	fns := t[workspace]
	if fns == nil {
		fns = make(map[string][]models.Message)
		t[workspace] = fns
	}
	fns[functionalityID] = append(fns[functionalityID], msgs...)
}

func (t transcripts) reset(workspace, functionalityID string) {
	fns := t[workspace]
	delete(fns, functionalityID)
	if len(fns) == 0 {
		delete(t, workspace)
	}
}
