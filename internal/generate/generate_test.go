package generate_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/protocanvas/protocanvas/internal/generate"
	"github.com/protocanvas/protocanvas/pkg/models"
)

type replyProvider struct {
	reply    string
	fallback bool
	err      error
}

func (p replyProvider) Name() string { return "reply" }
func (p replyProvider) Complete(ctx context.Context, req models.ChatRequest) (*models.ChatReply, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &models.ChatReply{Response: p.reply, Fallback: p.fallback}, nil
}

func TestNewPrototype_ParsesFencedDocument(t *testing.T) {
	reply := "Here is your app:\n```json\n" + `{
  "frames": [{"id": "f1", "label": "Main"}],
  "homeFrameId": "f1",
  "components": [
    {"type": "Input", "frameId": "f1", "properties": {"label": "Topic"}},
    {"id": "out", "type": "TextOutput", "frameId": "f1", "properties": {}}
  ],
  "functionalities": [{"name": "Summarize", "outputComponentId": "out", "systemPrompt": "Summarize."}]
}` + "\n```"

	p, err := generate.NewPrototype(context.Background(), replyProvider{reply: reply}, "a summarizer")
	require.NoError(t, err)
	assert.False(t, p.Fallback)

	doc := p.Document
	require.Len(t, doc.Components, 2)
	assert.NotEmpty(t, doc.Components[0].ID)
	assert.False(t, doc.Components[0].Size.IsZero())
	assert.Equal(t, "Topic", doc.Components[0].Label())
	assert.Equal(t, "f1", doc.HomeFrameID)
	require.Len(t, doc.Functionalities, 1)
	assert.NotEmpty(t, doc.Functionalities[0].ID)
}

func TestNewPrototype_FallbackDocument(t *testing.T) {
	tests := map[string]replyProvider{
		"unparseable":   {reply: "Sorry, I can only chat."},
		"no components": {reply: `{"components": []}`},
		"provider down": {reply: "apology", fallback: true},
		"error":         {err: errors.New("boom")},
	}
	for name, p := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := generate.NewPrototype(context.Background(), p, "a quiz app")
			require.NoError(t, err)
			assert.True(t, got.Fallback)

			doc := got.Document
			require.Len(t, doc.Functionalities, 1)
			fn := doc.Functionalities[0]
			assert.NotNil(t, doc.Component(fn.Trigger()))
			assert.NotNil(t, doc.Component(fn.Output()))
			assert.Contains(t, fn.SystemPrompt, "a quiz app")
			assert.NotNil(t, doc.Frame(doc.HomeFrameID))
		})
	}
}

func TestNewPrototype_BlankPrompt(t *testing.T) {
	_, err := generate.NewPrototype(context.Background(), replyProvider{}, "  ")
	assert.ErrorIs(t, err, generate.ErrPromptRequired)
}

func TestNewComponent_StripsFence(t *testing.T) {
	reply := "```jsx\nexport default function Card() { return <div/> }\n```"
	got, err := generate.NewComponent(context.Background(), replyProvider{reply: reply}, "a card")
	require.NoError(t, err)
	assert.Equal(t, "export default function Card() { return <div/> }", got.Code)
	assert.Equal(t, "jsx", got.Language)
}
