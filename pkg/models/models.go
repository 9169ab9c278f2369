// Package models holds the shared data model of the protocanvas server:
// the canvas document (components, frames, datasets), the AI functionality
// definitions wired on top of it, and the chat types exchanged with
// language-model providers.
package models

import (
	"encoding/json"
	"time"
)

// ── Geometry ─────────────────────────────────────────────────

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// IsZero reports whether the size was left unset.
func (s Size) IsZero() bool {
	return s.Width == 0 && s.Height == 0
}

// ── Frames ───────────────────────────────────────────────────

// FrameRecord is a named rectangular container establishing a navigation
// scope. Components reference frames through ComponentRecord.FrameID.
type FrameRecord struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Position Point  `json:"position"`
	Size     Size   `json:"size"`
}

// ── Datasets ─────────────────────────────────────────────────

// DatasetRefPrefix marks an AI functionality input that points at an
// uploaded tabular document rather than a canvas component.
const DatasetRefPrefix = "dataset:"

// Dataset is an uploaded tabular document, already parsed by the editor.
// SelectedColumns restricts which headers are fed to prompts; empty means all.
type Dataset struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Headers         []string   `json:"headers"`
	Rows            [][]string `json:"rows"`
	SelectedColumns []string   `json:"selectedColumns,omitempty"`
}

// DatasetRef builds the input reference for a dataset id.
func DatasetRef(id string) string {
	return DatasetRefPrefix + id
}

// ── AI Functionalities ───────────────────────────────────────

// AIFunctionality binds input components, a system prompt and an output
// component. Component references may dangle; the engine resolves missing
// components to nothing rather than failing.
type AIFunctionality struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	InputComponentIDs  []*string       `json:"inputComponentIds"`
	OutputComponentID  *string         `json:"outputComponentId"`
	TriggerComponentID *string         `json:"triggerComponentId"`
	SystemPrompt       string          `json:"systemPrompt"`
	OutputSchema       json.RawMessage `json:"outputSchema,omitempty"`
}

// Ref returns a pointer to id, for building nullable component references.
func Ref(id string) *string {
	return &id
}

// Output returns the output component id, or "" when unset.
func (f *AIFunctionality) Output() string {
	return deref(f.OutputComponentID)
}

// Trigger returns the trigger component id, or "" when unset.
func (f *AIFunctionality) Trigger() string {
	return deref(f.TriggerComponentID)
}

// Inputs returns the non-null input references in configured order.
func (f *AIFunctionality) Inputs() []string {
	out := make([]string, 0, len(f.InputComponentIDs))
	for _, id := range f.InputComponentIDs {
		if id == nil || *id == "" {
			continue
		}
		out = append(out, *id)
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ── Document ─────────────────────────────────────────────────

// Document is the full canvas of one workspace. HomeFrameID is a pointer
// stored next to the frames, not an attribute of any frame.
type Document struct {
	ID              string            `json:"id"`
	Components      []ComponentRecord `json:"components"`
	Frames          []FrameRecord     `json:"frames"`
	Functionalities []AIFunctionality `json:"functionalities"`
	Datasets        []Dataset         `json:"datasets,omitempty"`
	HomeFrameID     string            `json:"homeFrameId,omitempty"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// NewDocument returns an empty document for a workspace.
func NewDocument(id string) *Document {
	return &Document{
		ID:              id,
		Components:      []ComponentRecord{},
		Frames:          []FrameRecord{},
		Functionalities: []AIFunctionality{},
	}
}

// Component returns the component with the given id, or nil.
func (d *Document) Component(id string) *ComponentRecord {
	for i := range d.Components {
		if d.Components[i].ID == id {
			return &d.Components[i]
		}
	}
	return nil
}

// Frame returns the frame with the given id, or nil.
func (d *Document) Frame(id string) *FrameRecord {
	for i := range d.Frames {
		if d.Frames[i].ID == id {
			return &d.Frames[i]
		}
	}
	return nil
}

// Functionality returns the functionality with the given id, or nil.
func (d *Document) Functionality(id string) *AIFunctionality {
	for i := range d.Functionalities {
		if d.Functionalities[i].ID == id {
			return &d.Functionalities[i]
		}
	}
	return nil
}

// Dataset returns the dataset with the given id, or nil.
func (d *Document) Dataset(id string) *Dataset {
	for i := range d.Datasets {
		if d.Datasets[i].ID == id {
			return &d.Datasets[i]
		}
	}
	return nil
}

// ComponentsInFrame returns the components whose FrameID matches frameID.
// An empty frameID returns every component.
func (d *Document) ComponentsInFrame(frameID string) []ComponentRecord {
	if frameID == "" {
		return d.Components
	}
	var out []ComponentRecord
	for _, c := range d.Components {
		if c.FrameID == frameID {
			out = append(out, c)
		}
	}
	return out
}

// TriggeredBy returns the functionalities whose trigger is componentID.
func (d *Document) TriggeredBy(componentID string) []AIFunctionality {
	var out []AIFunctionality
	for _, f := range d.Functionalities {
		if f.Trigger() == componentID {
			out = append(out, f)
		}
	}
	return out
}

// Clone returns a deep copy made through the JSON encoding.
func (d *Document) Clone() (*Document, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	var cp Document
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

// ── Publishing ───────────────────────────────────────────────

// PublishedDocument is a frozen copy of a document reachable by share id.
type PublishedDocument struct {
	ID          string    `json:"id"`
	Title       string    `json:"title,omitempty"`
	Document    *Document `json:"document"`
	PublishedAt time.Time `json:"publishedAt"`
}
