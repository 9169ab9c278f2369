// Package publish keeps published documents for shareable preview links.
// Entries live in memory only and are lost on restart; the oldest are
// evicted once the store is full.
package publish

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/protocanvas/protocanvas/internal/store"
	"github.com/protocanvas/protocanvas/pkg/models"
)

// DefaultCapacity bounds the number of published documents kept.
const DefaultCapacity = 1024

// ErrDocumentRequired is returned when Publish is called without a document.
var ErrDocumentRequired = errors.New("document is required")

// Store is an LRU-bounded in-memory publish store.
type Store struct {
	cache *lru.Cache[string, *models.PublishedDocument]
}

// NewStore creates a publish store holding at most capacity documents.
func NewStore(capacity int) (*Store, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	cache, err := lru.NewWithEvict[string, *models.PublishedDocument](capacity, func(id string, _ *models.PublishedDocument) {
		log.Debug().Str("id", id).Msg("Published document evicted")
	})
	if err != nil {
		return nil, fmt.Errorf("create publish cache: %w", err)
	}
	return &Store{cache: cache}, nil
}

// Publish stores a snapshot of doc and returns the published record.
func (s *Store) Publish(title string, doc *models.Document) (*models.PublishedDocument, error) {
	if doc == nil {
		return nil, ErrDocumentRequired
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Untitled prototype"
	}
	snap, err := doc.Clone()
	if err != nil {
		return nil, fmt.Errorf("snapshot document: %w", err)
	}
	p := &models.PublishedDocument{
		ID:          uuid.New().String(),
		Title:       title,
		Document:    snap,
		PublishedAt: time.Now().UTC(),
	}
	s.cache.Add(p.ID, p)
	log.Info().Str("id", p.ID).Str("title", title).Msg("Document published")
	return p, nil
}

// Get returns a published document.
func (s *Store) Get(id string) (*models.PublishedDocument, error) {
	p, ok := s.cache.Get(id)
	if !ok {
		return nil, &store.ErrNotFound{Entity: "published document", Key: id}
	}
	return p, nil
}

// Len returns the number of published documents held.
func (s *Store) Len() int { return s.cache.Len() }
