package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Component type tags. The registry maps each of them to a definition.
const (
	TypeButton      = "Button"
	TypeInput       = "Input"
	TypeTextarea    = "Textarea"
	TypeCheckbox    = "Checkbox"
	TypeImageUpload = "ImageUpload"
	TypeTextOutput  = "TextOutput"
	TypeText        = "Text"
	TypeImage       = "Image"
)

// ComponentRecord is a component placed on the canvas. Properties carries a
// per-type variant; JSON keeps the flat {"type", "properties"} shape the
// editor writes.
type ComponentRecord struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Position   Point      `json:"position"`
	Size       Size       `json:"size"`
	FrameID    string     `json:"frameId,omitempty"`
	Properties Properties `json:"properties"`
}

// Properties is the tagged union of component property sets.
type Properties interface {
	properties()
}

type ButtonProps struct {
	Label      string `json:"label,omitempty"`
	NavigateTo string `json:"navigateTo,omitempty"`
}

type InputProps struct {
	Label       string `json:"label,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Value       string `json:"value"`
	NavigateTo  string `json:"navigateTo,omitempty"`
}

type TextareaProps struct {
	Label       string `json:"label,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Value       string `json:"value"`
}

type CheckboxProps struct {
	Label string `json:"label,omitempty"`
	Value *bool  `json:"value,omitempty"`
}

type ImageUploadProps struct {
	Label  string   `json:"label,omitempty"`
	Images []string `json:"images,omitempty"`
}

// TextOutputProps.Content holds either plain text, markdown, or a JSON
// encoded transcript written back by the execution engine.
type TextOutputProps struct {
	Label   string `json:"label,omitempty"`
	Content string `json:"content"`
	Format  string `json:"format,omitempty"`
}

type TextProps struct {
	Text       string `json:"text"`
	NavigateTo string `json:"navigateTo,omitempty"`
}

type ImageProps struct {
	Src        string `json:"src"`
	Alt        string `json:"alt,omitempty"`
	NavigateTo string `json:"navigateTo,omitempty"`
}

// GenericProps keeps the raw property bag of a type the server does not know.
type GenericProps map[string]any

func (*ButtonProps) properties()      {}
func (*InputProps) properties()       {}
func (*TextareaProps) properties()    {}
func (*CheckboxProps) properties()    {}
func (*ImageUploadProps) properties() {}
func (*TextOutputProps) properties()  {}
func (*TextProps) properties()        {}
func (*ImageProps) properties()       {}
func (GenericProps) properties()      {}

// NewProperties returns the zero property set for a component type.
func NewProperties(componentType string) Properties {
	switch componentType {
	case TypeButton:
		return &ButtonProps{}
	case TypeInput:
		return &InputProps{}
	case TypeTextarea:
		return &TextareaProps{}
	case TypeCheckbox:
		return &CheckboxProps{}
	case TypeImageUpload:
		return &ImageUploadProps{}
	case TypeTextOutput:
		return &TextOutputProps{}
	case TypeText:
		return &TextProps{}
	case TypeImage:
		return &ImageProps{}
	default:
		return GenericProps{}
	}
}

// UnmarshalJSON decodes the property bag into the variant selected by type.
func (c *ComponentRecord) UnmarshalJSON(data []byte) error {
	type wire struct {
		ID         string          `json:"id"`
		Type       string          `json:"type"`
		Position   Point           `json:"position"`
		Size       Size            `json:"size"`
		FrameID    string          `json:"frameId,omitempty"`
		Properties json.RawMessage `json:"properties"`
	}
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	props := NewProperties(w.Type)
	if len(w.Properties) > 0 && string(w.Properties) != "null" {
		var err error
		if g, ok := props.(GenericProps); ok {
			err = json.Unmarshal(w.Properties, &g)
			props = g
		} else {
			err = json.Unmarshal(w.Properties, props)
		}
		if err != nil {
			return fmt.Errorf("component %s: decode %s properties: %w", w.ID, w.Type, err)
		}
	}

	*c = ComponentRecord{
		ID:         w.ID,
		Type:       w.Type,
		Position:   w.Position,
		Size:       w.Size,
		FrameID:    w.FrameID,
		Properties: props,
	}
	return nil
}

// ── Capability accessors ─────────────────────────────────────

// AsTextValue returns the textual value a component holds.
func (c *ComponentRecord) AsTextValue() (string, bool) {
	switch p := c.Properties.(type) {
	case *InputProps:
		return p.Value, true
	case *TextareaProps:
		return p.Value, true
	case *TextOutputProps:
		return p.Content, true
	case *TextProps:
		return p.Text, true
	case GenericProps:
		for _, k := range []string{"value", "content", "text"} {
			if s, ok := p[k].(string); ok {
				return s, true
			}
		}
	}
	return "", false
}

// AsImageList returns the stored image data URLs of an upload component.
func (c *ComponentRecord) AsImageList() ([]string, bool) {
	switch p := c.Properties.(type) {
	case *ImageUploadProps:
		return p.Images, true
	case *ImageProps:
		if p.Src == "" {
			return nil, true
		}
		return []string{p.Src}, true
	}
	return nil, false
}

// AsBoolean returns the checked state of a checkbox. An unset value reads
// as false.
func (c *ComponentRecord) AsBoolean() (bool, bool) {
	p, ok := c.Properties.(*CheckboxProps)
	if !ok {
		return false, false
	}
	return p.Value != nil && *p.Value, true
}

// NavigateTarget returns the frame id the component navigates to on click.
func (c *ComponentRecord) NavigateTarget() string {
	switch p := c.Properties.(type) {
	case *ButtonProps:
		return p.NavigateTo
	case *InputProps:
		return p.NavigateTo
	case *TextProps:
		return p.NavigateTo
	case *ImageProps:
		return p.NavigateTo
	case GenericProps:
		s, _ := p["navigateTo"].(string)
		return s
	}
	return ""
}

// Label returns the human label of the component, or "".
func (c *ComponentRecord) Label() string {
	switch p := c.Properties.(type) {
	case *ButtonProps:
		return p.Label
	case *InputProps:
		return p.Label
	case *TextareaProps:
		return p.Label
	case *CheckboxProps:
		return p.Label
	case *ImageUploadProps:
		return p.Label
	case *TextOutputProps:
		return p.Label
	case GenericProps:
		s, _ := p["label"].(string)
		return s
	}
	return ""
}

// SetContent overwrites the displayed content of the component. It reports
// false for types that have nothing to display.
func (c *ComponentRecord) SetContent(content string) bool {
	switch p := c.Properties.(type) {
	case *TextOutputProps:
		p.Content = content
	case *TextProps:
		p.Text = content
	case *InputProps:
		p.Value = content
	case *TextareaProps:
		p.Value = content
	case GenericProps:
		p["content"] = content
	default:
		return false
	}
	return true
}

// SetValue stores a user-entered value. Checkbox values are parsed from
// "true"/"yes"/"on"/"1".
func (c *ComponentRecord) SetValue(value string) bool {
	switch p := c.Properties.(type) {
	case *InputProps:
		p.Value = value
	case *TextareaProps:
		p.Value = value
	case *CheckboxProps:
		v := parseChecked(value)
		p.Value = &v
	case *ImageUploadProps:
		if value == "" {
			p.Images = nil
		} else {
			p.Images = append(p.Images, value)
		}
	case GenericProps:
		p["value"] = value
	default:
		return false
	}
	return true
}

func parseChecked(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "on", "1", "checked":
		return true
	}
	return false
}
