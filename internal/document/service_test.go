package document_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/protocanvas/protocanvas/internal/document"
	"github.com/protocanvas/protocanvas/internal/store"
	"github.com/protocanvas/protocanvas/pkg/models"
)

func newService(t *testing.T) (*document.Service, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore("")
	t.Cleanup(func() { s.Close() })
	return document.NewService(s), s
}

func TestGet_EmptyWorkspace(t *testing.T) {
	svc, _ := newService(t)

	doc, err := svc.Get(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Equal(t, "fresh", doc.ID)
	assert.Empty(t, doc.Components)
}

func TestAddComponent_Defaults(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	c, err := svc.AddComponent(ctx, "w", models.ComponentRecord{Type: models.TypeTextOutput})
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.False(t, c.Size.IsZero())
	assert.IsType(t, &models.TextOutputProps{}, c.Properties)

	// Every mutation persists.
	saved, err := st.Load(ctx, "w")
	require.NoError(t, err)
	require.NotNil(t, saved.Component(c.ID))
}

func TestAddComponent_Validation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.AddComponent(ctx, "w", models.ComponentRecord{Type: "Hologram"})
	var ve *document.ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = svc.AddComponent(ctx, "w", models.ComponentRecord{ID: "c1", Type: models.TypeInput})
	require.NoError(t, err)
	_, err = svc.AddComponent(ctx, "w", models.ComponentRecord{ID: "c1", Type: models.TypeInput})
	require.ErrorAs(t, err, &ve)
}

func TestDeleteComponent_KeepsDanglingReferences(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.AddComponent(ctx, "w", models.ComponentRecord{ID: "c1", Type: models.TypeInput})
	require.NoError(t, err)
	_, err = svc.AddFunctionality(ctx, "w", models.AIFunctionality{
		ID:                "fn",
		InputComponentIDs: []*string{models.Ref("c1")},
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteComponent(ctx, "w", "c1"))

	doc, err := svc.Get(ctx, "w")
	require.NoError(t, err)
	assert.Nil(t, doc.Component("c1"))
	assert.Equal(t, []string{"c1"}, doc.Functionality("fn").Inputs())

	err = svc.DeleteComponent(ctx, "w", "c1")
	var nf *store.ErrNotFound
	require.ErrorAs(t, err, &nf)
}

func TestSetComponentValue(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	svc.AddComponent(ctx, "w", models.ComponentRecord{ID: "cb", Type: models.TypeCheckbox})
	svc.AddComponent(ctx, "w", models.ComponentRecord{ID: "btn", Type: models.TypeButton})

	c, err := svc.SetComponentValue(ctx, "w", "cb", "true")
	require.NoError(t, err)
	checked, _ := c.AsBoolean()
	assert.True(t, checked)

	_, err = svc.SetComponentValue(ctx, "w", "btn", "x")
	var ve *document.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestFrames_HomePointer(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	f, err := svc.AddFrame(ctx, "w", models.FrameRecord{})
	require.NoError(t, err)
	assert.Equal(t, "Frame 1", f.Label)

	require.NoError(t, svc.SetHomeFrame(ctx, "w", f.ID))
	var nf *store.ErrNotFound
	require.ErrorAs(t, svc.SetHomeFrame(ctx, "w", "nope"), &nf)

	require.NoError(t, svc.DeleteFrame(ctx, "w", f.ID))
	doc, _ := svc.Get(ctx, "w")
	assert.Empty(t, doc.HomeFrameID)
}

func TestFunctionalities(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	fn, err := svc.AddFunctionality(ctx, "w", models.AIFunctionality{SystemPrompt: "s"})
	require.NoError(t, err)
	assert.Equal(t, "AI Functionality 1", fn.Name)

	upd, err := svc.UpdateFunctionality(ctx, "w", fn.ID, models.AIFunctionality{
		SystemPrompt:      "You are helpful.",
		OutputComponentID: models.Ref("c2"),
	})
	require.NoError(t, err)
	assert.Equal(t, fn.Name, upd.Name)
	assert.Equal(t, "c2", upd.Output())

	_, err = svc.AddFunctionality(ctx, "w", models.AIFunctionality{OutputSchema: json.RawMessage(`{bad`)})
	var ve *document.ValidationError
	require.ErrorAs(t, err, &ve)

	require.NoError(t, svc.DeleteFunctionality(ctx, "w", fn.ID))
	doc, _ := svc.Get(ctx, "w")
	assert.Empty(t, doc.Functionalities)
}

func TestDatasets(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.AddDataset(ctx, "w", models.Dataset{Name: "empty"})
	var ve *document.ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = svc.AddDataset(ctx, "w", models.Dataset{Headers: []string{"a"}, SelectedColumns: []string{"b"}})
	require.ErrorAs(t, err, &ve)

	ds, err := svc.AddDataset(ctx, "w", models.Dataset{Name: "people", Headers: []string{"name"}, Rows: [][]string{{"Ada"}}})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteDataset(ctx, "w", ds.ID))
}

func TestReplace_RejectsDuplicateIDs(t *testing.T) {
	svc, _ := newService(t)
	doc := models.NewDocument("w")
	doc.Components = []models.ComponentRecord{
		{ID: "c1", Type: models.TypeText, Properties: &models.TextProps{}},
		{ID: "c1", Type: models.TypeText, Properties: &models.TextProps{}},
	}

	_, err := svc.Replace(context.Background(), "w", doc)
	var ve *document.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestMutate_SkipSave(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	_, err := svc.Mutate(ctx, "w", func(doc *models.Document) error { return document.ErrSkipSave })
	require.NoError(t, err)

	_, err = st.Load(ctx, "w")
	var nf *store.ErrNotFound
	require.ErrorAs(t, err, &nf)
}

func TestMutate_SerializedPerWorkspace(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.AddComponent(ctx, "w", models.ComponentRecord{Type: models.TypeText})
		}()
	}
	wg.Wait()

	doc, err := svc.Get(ctx, "w")
	require.NoError(t, err)
	assert.Len(t, doc.Components, 20)
}
