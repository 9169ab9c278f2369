package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/protocanvas/protocanvas/pkg/models"
)

// ErrInputMissing is returned when every resolved input is blank. No
// provider call is made.
var ErrInputMissing = errors.New("input missing: provide a value in at least one input component")

// KindDataset marks a resolved input coming from an uploaded dataset.
const KindDataset = "dataset"

// ResolvedInput is the prompt-ready value of one configured input.
type ResolvedInput struct {
	ID     string   `json:"id"`
	Label  string   `json:"label"`
	Kind   string   `json:"kind"`
	Value  string   `json:"value"`
	Images []string `json:"images,omitempty"`
}

// ResolveInputs resolves the functionality's inputs against doc in
// configured order. Null entries and references to absent components or
// datasets contribute nothing. It never fails.
func ResolveInputs(fn *models.AIFunctionality, doc *models.Document) []ResolvedInput {
	var out []ResolvedInput
	for _, id := range fn.Inputs() {
		if dsID, ok := strings.CutPrefix(id, models.DatasetRefPrefix); ok {
			ds := doc.Dataset(dsID)
			if ds == nil {
				continue
			}
			out = append(out, ResolvedInput{
				ID:    id,
				Label: ds.Name,
				Kind:  KindDataset,
				Value: FormatDataset(ds),
			})
			continue
		}

		c := doc.Component(id)
		if c == nil {
			continue
		}
		in := ResolvedInput{ID: id, Label: c.Label(), Kind: c.Type}
		if in.Label == "" {
			in.Label = id
		}
		in.Value, in.Images = componentValue(c)
		out = append(out, in)
	}
	return out
}

// ResolveInputMap maps every configured input id to its value. Dangling
// references map to "".
func ResolveInputMap(fn *models.AIFunctionality, doc *models.Document) map[string]string {
	m := make(map[string]string)
	for _, id := range fn.Inputs() {
		m[id] = ""
	}
	for _, in := range ResolveInputs(fn, doc) {
		m[in.ID] = in.Value
	}
	return m
}

// componentValue extracts the prompt value of a component. Checkboxes read
// as "Yes"/"No" so the prompt stays natural language. Uploaded images stay
// out of the text; the line only notes how many are attached.
func componentValue(c *models.ComponentRecord) (string, []string) {
	if checked, ok := c.AsBoolean(); ok {
		if checked {
			return "Yes", nil
		}
		return "No", nil
	}
	if c.Type == models.TypeImageUpload {
		imgs, _ := c.AsImageList()
		switch len(imgs) {
		case 0:
			return "", nil
		case 1:
			return "[1 image attached]", imgs
		default:
			return fmt.Sprintf("[%d images attached]", len(imgs)), imgs
		}
	}
	v, _ := c.AsTextValue()
	return v, nil
}

// CollectImages gathers the attached images of every input in order.
func CollectImages(inputs []ResolvedInput) []string {
	var out []string
	for _, in := range inputs {
		out = append(out, in.Images...)
	}
	return out
}

// FormatDataset renders the selected columns, or all of them, as
// "header: value" pairs per row under a "Document: <name>" line.
func FormatDataset(ds *models.Dataset) string {
	cols := ds.SelectedColumns
	if len(cols) == 0 {
		cols = ds.Headers
	}
	index := make(map[string]int, len(ds.Headers))
	for i, h := range ds.Headers {
		index[h] = i
	}

	lines := make([]string, 0, len(ds.Rows)+1)
	lines = append(lines, "Document: "+ds.Name)
	for _, row := range ds.Rows {
		pairs := make([]string, 0, len(cols))
		for _, col := range cols {
			i, ok := index[col]
			if !ok {
				continue
			}
			v := ""
			if i < len(row) {
				v = row[i]
			}
			pairs = append(pairs, col+": "+v)
		}
		lines = append(lines, strings.Join(pairs, ", "))
	}
	return strings.Join(lines, "\n")
}

// BuildUserMessage joins the non-blank inputs into the user turn, one
// "<label-or-id>: <value>" line each. Dataset blocks are emitted as is.
func BuildUserMessage(inputs []ResolvedInput) (string, error) {
	lines := make([]string, 0, len(inputs))
	for _, in := range inputs {
		if strings.TrimSpace(in.Value) == "" {
			continue
		}
		if in.Kind == KindDataset {
			lines = append(lines, in.Value)
			continue
		}
		lines = append(lines, in.Label+": "+in.Value)
	}
	msg := strings.Join(lines, "\n")
	if strings.TrimSpace(msg) == "" {
		return "", ErrInputMissing
	}
	return msg, nil
}
