// Package registry is the static component catalog: every component type the
// canvas knows about, its category and default size, and how Run Mode
// renders it.
package registry

import (
	"sort"

	"github.com/protocanvas/protocanvas/pkg/models"
)

// Category groups component types in the picker.
type Category string

const (
	CategoryInput   Category = "input"
	CategoryOutput  Category = "output"
	CategoryAction  Category = "action"
	CategoryDisplay Category = "display"
)

// Definition describes one component type.
type Definition struct {
	Type        string                               `json:"type"`
	Label       string                               `json:"label"`
	Category    Category                             `json:"category"`
	DefaultSize models.Size                          `json:"defaultSize"`
	New         func() models.Properties             `json:"-"`
	Render      func(c *models.ComponentRecord) View `json:"-"`
}

var definitions = map[string]Definition{
	models.TypeButton: {
		Type: models.TypeButton, Label: "Button", Category: CategoryAction,
		DefaultSize: models.Size{Width: 120, Height: 40},
		Render:      renderButton,
	},
	models.TypeInput: {
		Type: models.TypeInput, Label: "Text Input", Category: CategoryInput,
		DefaultSize: models.Size{Width: 240, Height: 40},
		Render:      renderTextField,
	},
	models.TypeTextarea: {
		Type: models.TypeTextarea, Label: "Text Area", Category: CategoryInput,
		DefaultSize: models.Size{Width: 320, Height: 120},
		Render:      renderTextField,
	},
	models.TypeCheckbox: {
		Type: models.TypeCheckbox, Label: "Checkbox", Category: CategoryInput,
		DefaultSize: models.Size{Width: 160, Height: 32},
		Render:      renderCheckbox,
	},
	models.TypeImageUpload: {
		Type: models.TypeImageUpload, Label: "Image Upload", Category: CategoryInput,
		DefaultSize: models.Size{Width: 240, Height: 180},
		Render:      renderImageUpload,
	},
	models.TypeTextOutput: {
		Type: models.TypeTextOutput, Label: "Text Output", Category: CategoryOutput,
		DefaultSize: models.Size{Width: 360, Height: 240},
		Render:      renderTextOutput,
	},
	models.TypeText: {
		Type: models.TypeText, Label: "Text", Category: CategoryDisplay,
		DefaultSize: models.Size{Width: 200, Height: 32},
		Render:      renderText,
	},
	models.TypeImage: {
		Type: models.TypeImage, Label: "Image", Category: CategoryDisplay,
		DefaultSize: models.Size{Width: 200, Height: 150},
		Render:      renderImage,
	},
}

func init() {
	for t, d := range definitions {
		typ := t
		d.New = func() models.Properties { return models.NewProperties(typ) }
		definitions[t] = d
	}
}

// Lookup returns the definition for a component type.
func Lookup(componentType string) (Definition, bool) {
	d, ok := definitions[componentType]
	return d, ok
}

// Known reports whether the type is registered.
func Known(componentType string) bool {
	_, ok := definitions[componentType]
	return ok
}

// All returns every definition ordered by category, then type.
func All() []Definition {
	out := make([]Definition, 0, len(definitions))
	for _, d := range definitions {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// Categories returns the distinct categories in sorted order.
func Categories() []Category {
	seen := make(map[Category]bool)
	var out []Category
	for _, d := range All() {
		if !seen[d.Category] {
			seen[d.Category] = true
			out = append(out, d.Category)
		}
	}
	return out
}

// Render produces the run-mode view of a component. Unregistered types
// render as a placeholder carrying their text value, if any.
func Render(c *models.ComponentRecord) View {
	if d, ok := definitions[c.Type]; ok && d.Render != nil {
		return d.Render(c)
	}
	v := baseView(c)
	v.Placeholder = true
	v.Text, _ = c.AsTextValue()
	v.NavigateTo = c.NavigateTarget()
	v.Clickable = v.NavigateTo != ""
	return v
}
