// Package generate synthesizes canvas documents and component code from
// natural-language prompts through a chat provider.
package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/protocanvas/protocanvas/internal/provider"
	"github.com/protocanvas/protocanvas/internal/registry"
	"github.com/protocanvas/protocanvas/internal/structured"
	"github.com/protocanvas/protocanvas/pkg/models"
)

// ErrPromptRequired is returned for a blank prompt.
var ErrPromptRequired = errors.New("prompt is required")

// Prototype is a generated document. Fallback is set when the model reply
// could not be used and the minimal document was returned instead.
type Prototype struct {
	Document *models.Document `json:"document"`
	Fallback bool             `json:"fallback,omitempty"`
	Reason   string           `json:"reason,omitempty"`
}

const prototypeSystemPrompt = `You design UI prototypes on a canvas.
Reply with one JSON object {"components": [...], "frames": [...], "functionalities": [...], "homeFrameId": "..."}.
Each component is {"id", "type", "position": {"x","y"}, "size": {"width","height"}, "frameId", "properties": {...}}.
Allowed component types: %s.
Each functionality is {"id", "name", "inputComponentIds": [...], "outputComponentId", "triggerComponentId", "systemPrompt"}.
Frames are {"id", "label", "position", "size"}. Output components should be TextOutput.`

// NewPrototype asks chat for a document matching prompt. Replies that do not
// parse fall back to a minimal question/answer document.
func NewPrototype(ctx context.Context, chat provider.ChatProvider, prompt string) (*Prototype, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrPromptRequired
	}

	types := make([]string, 0, len(registry.All()))
	for _, d := range registry.All() {
		types = append(types, d.Type)
	}

	reply, err := chat.Complete(ctx, models.ChatRequest{
		SystemPrompt: fmt.Sprintf(prototypeSystemPrompt, strings.Join(types, ", ")),
		Messages:     []models.Message{{Role: models.RoleUser, Content: prompt}},
	})
	if err != nil {
		return fallbackPrototype(prompt, err.Error()), nil
	}
	if reply.Fallback {
		return fallbackPrototype(prompt, "provider unavailable"), nil
	}

	doc, err := decodeDocument(reply.Response)
	if err != nil {
		log.Warn().Err(err).Msg("Generated prototype unusable, returning fallback document")
		return fallbackPrototype(prompt, err.Error()), nil
	}
	return &Prototype{Document: doc}, nil
}

func decodeDocument(raw string) (*models.Document, error) {
	data, err := structured.Extract(raw)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("re-encode document: %w", err)
	}
	doc := models.NewDocument("")
	if err := json.Unmarshal(b, doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if len(doc.Components) == 0 {
		return nil, errors.New("generated document has no components")
	}
	normalize(doc)
	return doc, nil
}

// normalize assigns missing ids and default sizes, and drops a home frame
// pointer that names no frame.
func normalize(doc *models.Document) {
	for i := range doc.Components {
		c := &doc.Components[i]
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		if def, ok := registry.Lookup(c.Type); ok && c.Size.IsZero() {
			c.Size = def.DefaultSize
		}
	}
	for i := range doc.Frames {
		if doc.Frames[i].ID == "" {
			doc.Frames[i].ID = uuid.New().String()
		}
	}
	for i := range doc.Functionalities {
		if doc.Functionalities[i].ID == "" {
			doc.Functionalities[i].ID = uuid.New().String()
		}
		if doc.Functionalities[i].InputComponentIDs == nil {
			doc.Functionalities[i].InputComponentIDs = []*string{}
		}
	}
	if doc.HomeFrameID != "" && doc.Frame(doc.HomeFrameID) == nil {
		doc.HomeFrameID = ""
	}
	if doc.Frames == nil {
		doc.Frames = []models.FrameRecord{}
	}
	if doc.Functionalities == nil {
		doc.Functionalities = []models.AIFunctionality{}
	}
}

// fallbackPrototype is the minimal question → answer document.
func fallbackPrototype(prompt, reason string) *Prototype {
	frame := models.FrameRecord{
		ID:       uuid.New().String(),
		Label:    "Home",
		Position: models.Point{X: 0, Y: 0},
		Size:     models.Size{Width: 800, Height: 600},
	}
	input := models.ComponentRecord{
		ID:         uuid.New().String(),
		Type:       models.TypeInput,
		Position:   models.Point{X: 40, Y: 40},
		Size:       models.Size{Width: 400, Height: 40},
		FrameID:    frame.ID,
		Properties: &models.InputProps{Label: "Your question", Placeholder: "Ask anything..."},
	}
	button := models.ComponentRecord{
		ID:         uuid.New().String(),
		Type:       models.TypeButton,
		Position:   models.Point{X: 460, Y: 40},
		Size:       models.Size{Width: 120, Height: 40},
		FrameID:    frame.ID,
		Properties: &models.ButtonProps{Label: "Ask"},
	}
	output := models.ComponentRecord{
		ID:         uuid.New().String(),
		Type:       models.TypeTextOutput,
		Position:   models.Point{X: 40, Y: 120},
		Size:       models.Size{Width: 540, Height: 300},
		FrameID:    frame.ID,
		Properties: &models.TextOutputProps{Label: "Answer", Format: registry.FormatChat},
	}

	doc := models.NewDocument("")
	doc.Frames = []models.FrameRecord{frame}
	doc.HomeFrameID = frame.ID
	doc.Components = []models.ComponentRecord{input, button, output}
	doc.Functionalities = []models.AIFunctionality{{
		ID:                 uuid.New().String(),
		Name:               "Answer question",
		InputComponentIDs:  []*string{models.Ref(input.ID)},
		OutputComponentID:  models.Ref(output.ID),
		TriggerComponentID: models.Ref(button.ID),
		SystemPrompt:       "You are a helpful assistant for this prototype: " + prompt,
	}}
	return &Prototype{Document: doc, Fallback: true, Reason: reason}
}

// ── Component code ──────────────────────────────────────────

// ComponentCode is a generated UI component.
type ComponentCode struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	Fallback bool   `json:"fallback,omitempty"`
}

var codeFence = regexp.MustCompile("(?s)```([a-zA-Z0-9]*)\\s*\\n(.*?)```")

const componentSystemPrompt = `You write self-contained React function components in TypeScript using Tailwind classes.
Reply with the code only, in one fenced code block.`

// NewComponent asks chat for component source matching description.
func NewComponent(ctx context.Context, chat provider.ChatProvider, description string) (*ComponentCode, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, ErrPromptRequired
	}
	reply, err := chat.Complete(ctx, models.ChatRequest{
		SystemPrompt: componentSystemPrompt,
		Messages:     []models.Message{{Role: models.RoleUser, Content: description}},
	})
	if err != nil {
		return nil, err
	}

	out := &ComponentCode{Code: strings.TrimSpace(reply.Response), Language: "tsx", Fallback: reply.Fallback}
	if m := codeFence.FindStringSubmatch(reply.Response); m != nil {
		out.Code = strings.TrimSpace(m[2])
		if m[1] != "" {
			out.Language = m[1]
		}
	}
	return out, nil
}
