package registry

import (
	"encoding/json"
	"strings"

	"github.com/protocanvas/protocanvas/pkg/models"
)

// Output formats of a rendered TextOutput.
const (
	FormatPlain    = "plain"
	FormatMarkdown = "markdown"
	FormatChat     = "chat"
)

// View is the run-mode view model of one component.
type View struct {
	ID          string           `json:"id"`
	Type        string           `json:"type"`
	Position    models.Point     `json:"position"`
	Size        models.Size      `json:"size"`
	Label       string           `json:"label,omitempty"`
	Text        string           `json:"text,omitempty"`
	Value       string           `json:"value,omitempty"`
	Placeholder bool             `json:"placeholder,omitempty"`
	Checked     *bool            `json:"checked,omitempty"`
	Images      []string         `json:"images,omitempty"`
	Messages    []models.Message `json:"messages,omitempty"`
	Format      string           `json:"format,omitempty"`
	Clickable   bool             `json:"clickable"`
	Editable    bool             `json:"editable"`
	NavigateTo  string           `json:"navigateTo,omitempty"`
}

func baseView(c *models.ComponentRecord) View {
	return View{
		ID:       c.ID,
		Type:     c.Type,
		Position: c.Position,
		Size:     c.Size,
		Label:    c.Label(),
	}
}

func renderButton(c *models.ComponentRecord) View {
	v := baseView(c)
	v.Text = v.Label
	v.NavigateTo = c.NavigateTarget()
	v.Clickable = true
	return v
}

func renderTextField(c *models.ComponentRecord) View {
	v := baseView(c)
	v.Value, _ = c.AsTextValue()
	v.NavigateTo = c.NavigateTarget()
	v.Editable = true
	v.Clickable = v.NavigateTo != ""
	return v
}

func renderCheckbox(c *models.ComponentRecord) View {
	v := baseView(c)
	checked, _ := c.AsBoolean()
	v.Checked = &checked
	v.Editable = true
	return v
}

func renderImageUpload(c *models.ComponentRecord) View {
	v := baseView(c)
	v.Images, _ = c.AsImageList()
	v.Editable = true
	return v
}

func renderTextOutput(c *models.ComponentRecord) View {
	v := baseView(c)
	content, _ := c.AsTextValue()
	format := ""
	if p, ok := c.Properties.(*models.TextOutputProps); ok {
		format = p.Format
	}
	if msgs, ok := DecodeTranscript(content); ok {
		v.Messages = msgs
		v.Format = FormatChat
		return v
	}
	v.Text = content
	v.Format = FormatPlain
	if format == FormatMarkdown {
		v.Format = FormatMarkdown
	}
	return v
}

func renderText(c *models.ComponentRecord) View {
	v := baseView(c)
	v.Text, _ = c.AsTextValue()
	v.NavigateTo = c.NavigateTarget()
	v.Clickable = v.NavigateTo != ""
	return v
}

func renderImage(c *models.ComponentRecord) View {
	v := baseView(c)
	v.Images, _ = c.AsImageList()
	if p, ok := c.Properties.(*models.ImageProps); ok {
		v.Text = p.Alt
	}
	v.NavigateTo = c.NavigateTarget()
	v.Clickable = v.NavigateTo != ""
	return v
}

// DecodeTranscript detects an array-of-messages payload in output content.
// Plain strings, and arrays whose entries lack a role, are not transcripts.
func DecodeTranscript(content string) ([]models.Message, bool) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "[") {
		return nil, false
	}
	var msgs []models.Message
	if err := json.Unmarshal([]byte(trimmed), &msgs); err != nil {
		return nil, false
	}
	for _, m := range msgs {
		if !models.ValidRole(m.Role) {
			return nil, false
		}
	}
	return msgs, true
}
