// Package document is the canvas document model: it loads the per-workspace
// Document from the injected store, applies mutations, and persists after
// every one of them.
package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/protocanvas/protocanvas/internal/registry"
	"github.com/protocanvas/protocanvas/internal/store"
	"github.com/protocanvas/protocanvas/pkg/models"
)

// ErrSkipSave may be returned by a Mutate callback that made no change.
// Mutate then returns the document without persisting it.
var ErrSkipSave = errors.New("document unchanged")

// ValidationError reports a rejected mutation. The HTTP layer maps it to 400.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func notFound(entity, id string) error {
	return &store.ErrNotFound{Entity: entity, Key: id}
}

// Service serializes mutations per workspace. Readers get a private copy.
type Service struct {
	store store.DocumentStore
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a document service over s.
func NewService(s store.DocumentStore) *Service {
	return &Service{
		store: s,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
}

func (s *Service) lock(workspace string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[workspace]
	if !ok {
		l = &sync.Mutex{}
		s.locks[workspace] = l
	}
	return l
}

func (s *Service) load(ctx context.Context, workspace string) (*models.Document, error) {
	doc, err := s.store.Load(ctx, workspace)
	if err != nil {
		var nf *store.ErrNotFound
		if errors.As(err, &nf) {
			return models.NewDocument(workspace), nil
		}
		return nil, fmt.Errorf("load document %s: %w", workspace, err)
	}
	doc.ID = workspace
	return doc, nil
}

// Get returns the workspace document. A workspace that was never saved
// yields an empty document.
func (s *Service) Get(ctx context.Context, workspace string) (*models.Document, error) {
	return s.load(ctx, workspace)
}

// Mutate loads the document, applies fn and saves the result while holding
// the workspace lock.
func (s *Service) Mutate(ctx context.Context, workspace string, fn func(doc *models.Document) error) (*models.Document, error) {
	l := s.lock(workspace)
	l.Lock()
	defer l.Unlock()

	doc, err := s.load(ctx, workspace)
	if err != nil {
		return nil, err
	}
	if err := fn(doc); err != nil {
		if errors.Is(err, ErrSkipSave) {
			return doc, nil
		}
		return nil, err
	}
	doc.ID = workspace
	doc.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document %s: %w", workspace, err)
	}
	log.Debug().Str("workspace", workspace).Msg("Document saved")
	return doc, nil
}

// Replace overwrites the whole document.
func (s *Service) Replace(ctx context.Context, workspace string, next *models.Document) (*models.Document, error) {
	if next == nil {
		return nil, invalid("document", "is required")
	}
	if err := validateDocument(next); err != nil {
		return nil, err
	}
	return s.Mutate(ctx, workspace, func(doc *models.Document) error {
		*doc = *next
		if doc.Components == nil {
			doc.Components = []models.ComponentRecord{}
		}
		if doc.Frames == nil {
			doc.Frames = []models.FrameRecord{}
		}
		if doc.Functionalities == nil {
			doc.Functionalities = []models.AIFunctionality{}
		}
		return nil
	})
}

func validateDocument(doc *models.Document) error {
	seen := make(map[string]bool, len(doc.Components))
	for _, c := range doc.Components {
		if c.ID == "" {
			return invalid("components", "component without id")
		}
		if seen[c.ID] {
			return invalid("components", "duplicate component id %q", c.ID)
		}
		seen[c.ID] = true
	}
	for _, f := range doc.Functionalities {
		if err := validateSchema(f.OutputSchema); err != nil {
			return err
		}
	}
	return nil
}

func validateSchema(schema json.RawMessage) error {
	if len(schema) == 0 || json.Valid(schema) {
		return nil
	}
	return invalid("outputSchema", "is not valid JSON")
}

// ── Components ──────────────────────────────────────────────

// AddComponent places a new component. Id and size default from the
// registry when left empty.
func (s *Service) AddComponent(ctx context.Context, workspace string, c models.ComponentRecord) (*models.ComponentRecord, error) {
	def, ok := registry.Lookup(c.Type)
	if !ok {
		return nil, invalid("type", "unknown component type %q", c.Type)
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Size.IsZero() {
		c.Size = def.DefaultSize
	}
	if c.Properties == nil {
		c.Properties = def.New()
	}

	_, err := s.Mutate(ctx, workspace, func(doc *models.Document) error {
		if doc.Component(c.ID) != nil {
			return invalid("id", "component %q already exists", c.ID)
		}
		doc.Components = append(doc.Components, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateComponent replaces position, size, frame and properties of an
// existing component.
func (s *Service) UpdateComponent(ctx context.Context, workspace, id string, c models.ComponentRecord) (*models.ComponentRecord, error) {
	var out models.ComponentRecord
	_, err := s.Mutate(ctx, workspace, func(doc *models.Document) error {
		cur := doc.Component(id)
		if cur == nil {
			return notFound("component", id)
		}
		if c.Type != "" && c.Type != cur.Type {
			if _, ok := registry.Lookup(c.Type); !ok {
				return invalid("type", "unknown component type %q", c.Type)
			}
			cur.Type = c.Type
		}
		cur.Position = c.Position
		if !c.Size.IsZero() {
			cur.Size = c.Size
		}
		cur.FrameID = c.FrameID
		if c.Properties != nil {
			cur.Properties = c.Properties
		}
		out = *cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteComponent removes a component. Functionalities keep their now
// dangling references.
func (s *Service) DeleteComponent(ctx context.Context, workspace, id string) error {
	_, err := s.Mutate(ctx, workspace, func(doc *models.Document) error {
		for i := range doc.Components {
			if doc.Components[i].ID == id {
				doc.Components = append(doc.Components[:i], doc.Components[i+1:]...)
				return nil
			}
		}
		return notFound("component", id)
	})
	return err
}

// SetComponentValue records a value typed or toggled by the user.
func (s *Service) SetComponentValue(ctx context.Context, workspace, id, value string) (*models.ComponentRecord, error) {
	var out models.ComponentRecord
	_, err := s.Mutate(ctx, workspace, func(doc *models.Document) error {
		c := doc.Component(id)
		if c == nil {
			return notFound("component", id)
		}
		if !c.SetValue(value) {
			return invalid("value", "component type %q does not take a value", c.Type)
		}
		out = *c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ── Frames ──────────────────────────────────────────────────

func (s *Service) AddFrame(ctx context.Context, workspace string, f models.FrameRecord) (*models.FrameRecord, error) {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	_, err := s.Mutate(ctx, workspace, func(doc *models.Document) error {
		if doc.Frame(f.ID) != nil {
			return invalid("id", "frame %q already exists", f.ID)
		}
		if f.Label == "" {
			f.Label = fmt.Sprintf("Frame %d", len(doc.Frames)+1)
		}
		doc.Frames = append(doc.Frames, f)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// DeleteFrame removes a frame and clears the home pointer if it pointed
// there. Components keep their frameId.
func (s *Service) DeleteFrame(ctx context.Context, workspace, id string) error {
	_, err := s.Mutate(ctx, workspace, func(doc *models.Document) error {
		for i := range doc.Frames {
			if doc.Frames[i].ID == id {
				doc.Frames = append(doc.Frames[:i], doc.Frames[i+1:]...)
				if doc.HomeFrameID == id {
					doc.HomeFrameID = ""
				}
				return nil
			}
		}
		return notFound("frame", id)
	})
	return err
}

// SetHomeFrame designates the frame Run Mode starts on. An empty id clears it.
func (s *Service) SetHomeFrame(ctx context.Context, workspace, id string) error {
	_, err := s.Mutate(ctx, workspace, func(doc *models.Document) error {
		if id != "" && doc.Frame(id) == nil {
			return notFound("frame", id)
		}
		doc.HomeFrameID = id
		return nil
	})
	return err
}

// ── Functionalities ─────────────────────────────────────────

func (s *Service) AddFunctionality(ctx context.Context, workspace string, fn models.AIFunctionality) (*models.AIFunctionality, error) {
	if err := validateSchema(fn.OutputSchema); err != nil {
		return nil, err
	}
	if fn.ID == "" {
		fn.ID = uuid.New().String()
	}
	if fn.InputComponentIDs == nil {
		fn.InputComponentIDs = []*string{}
	}
	_, err := s.Mutate(ctx, workspace, func(doc *models.Document) error {
		if doc.Functionality(fn.ID) != nil {
			return invalid("id", "functionality %q already exists", fn.ID)
		}
		if fn.Name == "" {
			fn.Name = fmt.Sprintf("AI Functionality %d", len(doc.Functionalities)+1)
		}
		doc.Functionalities = append(doc.Functionalities, fn)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &fn, nil
}

func (s *Service) UpdateFunctionality(ctx context.Context, workspace, id string, fn models.AIFunctionality) (*models.AIFunctionality, error) {
	if err := validateSchema(fn.OutputSchema); err != nil {
		return nil, err
	}
	fn.ID = id
	if fn.InputComponentIDs == nil {
		fn.InputComponentIDs = []*string{}
	}
	_, err := s.Mutate(ctx, workspace, func(doc *models.Document) error {
		cur := doc.Functionality(id)
		if cur == nil {
			return notFound("functionality", id)
		}
		if fn.Name == "" {
			fn.Name = cur.Name
		}
		*cur = fn
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &fn, nil
}

func (s *Service) DeleteFunctionality(ctx context.Context, workspace, id string) error {
	_, err := s.Mutate(ctx, workspace, func(doc *models.Document) error {
		for i := range doc.Functionalities {
			if doc.Functionalities[i].ID == id {
				doc.Functionalities = append(doc.Functionalities[:i], doc.Functionalities[i+1:]...)
				return nil
			}
		}
		return notFound("functionality", id)
	})
	return err
}

// ── Datasets ────────────────────────────────────────────────

// AddDataset stores an already parsed tabular document. Inputs reference it
// as models.DatasetRef(id).
func (s *Service) AddDataset(ctx context.Context, workspace string, ds models.Dataset) (*models.Dataset, error) {
	if len(ds.Headers) == 0 {
		return nil, invalid("headers", "at least one column is required")
	}
	known := make(map[string]bool, len(ds.Headers))
	for _, h := range ds.Headers {
		known[h] = true
	}
	for _, col := range ds.SelectedColumns {
		if !known[col] {
			return nil, invalid("selectedColumns", "unknown column %q", col)
		}
	}
	if ds.ID == "" {
		ds.ID = uuid.New().String()
	}
	if ds.Name == "" {
		ds.Name = "Dataset"
	}
	_, err := s.Mutate(ctx, workspace, func(doc *models.Document) error {
		if doc.Dataset(ds.ID) != nil {
			return invalid("id", "dataset %q already exists", ds.ID)
		}
		doc.Datasets = append(doc.Datasets, ds)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ds, nil
}

func (s *Service) DeleteDataset(ctx context.Context, workspace, id string) error {
	_, err := s.Mutate(ctx, workspace, func(doc *models.Document) error {
		for i := range doc.Datasets {
			if doc.Datasets[i].ID == id {
				doc.Datasets = append(doc.Datasets[:i], doc.Datasets[i+1:]...)
				return nil
			}
		}
		return notFound("dataset", id)
	})
	return err
}
