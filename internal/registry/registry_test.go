package registry_test

import (
	"testing"

	"github.com/protocanvas/protocanvas/internal/registry"
	"github.com/protocanvas/protocanvas/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup_BuiltinTypes(t *testing.T) {
	for _, typ := range []string{
		models.TypeButton, models.TypeInput, models.TypeTextarea, models.TypeCheckbox,
		models.TypeImageUpload, models.TypeTextOutput, models.TypeText, models.TypeImage,
	} {
		d, ok := registry.Lookup(typ)
		require.True(t, ok, "Lookup(%q) not found", typ)
		assert.False(t, d.DefaultSize.IsZero(), "%s has no default size", typ)
		require.NotNil(t, d.New)
		assert.NotNil(t, d.New())
	}

	_, ok := registry.Lookup("Carousel")
	assert.False(t, ok)
}

func TestAll_SortedByCategory(t *testing.T) {
	all := registry.All()
	require.NotEmpty(t, all)
	for i := 1; i < len(all); i++ {
		prev, cur := all[i-1], all[i]
		if prev.Category == cur.Category {
			assert.Less(t, prev.Type, cur.Type)
		} else {
			assert.Less(t, string(prev.Category), string(cur.Category))
		}
	}
	assert.Len(t, registry.Categories(), 4)
}

func TestRender_TextOutputDetectsTranscript(t *testing.T) {
	c := &models.ComponentRecord{
		ID:   "out",
		Type: models.TypeTextOutput,
		Properties: &models.TextOutputProps{
			Content: `[{"role":"user","content":"c1: Hello"},{"role":"assistant","content":"Hi there"}]`,
		},
	}
	v := registry.Render(c)
	assert.Equal(t, registry.FormatChat, v.Format)
	require.Len(t, v.Messages, 2)
	assert.Equal(t, "Hi there", v.Messages[1].Content)
	assert.Empty(t, v.Text)
}

func TestRender_TextOutputPlainAndMarkdown(t *testing.T) {
	plain := registry.Render(&models.ComponentRecord{Type: models.TypeTextOutput, Properties: &models.TextOutputProps{Content: "[not json"}})
	assert.Equal(t, registry.FormatPlain, plain.Format)
	assert.Equal(t, "[not json", plain.Text)

	md := registry.Render(&models.ComponentRecord{Type: models.TypeTextOutput, Properties: &models.TextOutputProps{Content: "# Title", Format: "markdown"}})
	assert.Equal(t, registry.FormatMarkdown, md.Format)
}

func TestRender_ButtonIsClickable(t *testing.T) {
	v := registry.Render(&models.ComponentRecord{ID: "b", Type: models.TypeButton, Properties: &models.ButtonProps{Label: "Send", NavigateTo: "f2"}})
	assert.True(t, v.Clickable)
	assert.Equal(t, "Send", v.Text)
	assert.Equal(t, "f2", v.NavigateTo)
}

func TestRender_UnknownTypePlaceholder(t *testing.T) {
	v := registry.Render(&models.ComponentRecord{ID: "x", Type: "Map", Properties: models.GenericProps{"content": "hi"}})
	assert.True(t, v.Placeholder)
	assert.Equal(t, "hi", v.Text)
	assert.False(t, v.Clickable)
}

func TestDecodeTranscript_RejectsNonMessages(t *testing.T) {
	_, ok := registry.DecodeTranscript(`[1,2,3]`)
	assert.False(t, ok)
	_, ok = registry.DecodeTranscript(`[{"name":"x"}]`)
	assert.False(t, ok)
	msgs, ok := registry.DecodeTranscript(`[]`)
	assert.True(t, ok)
	assert.Empty(t, msgs)
}
