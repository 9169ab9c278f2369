package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/protocanvas/protocanvas/internal/store"
	"github.com/protocanvas/protocanvas/pkg/models"
)

// newTestStore creates a fresh in-memory store that snapshots into a temp dir.
func newTestStore(t *testing.T) (*store.MemoryStore, string) {
	t.Helper()
	dir := t.TempDir()
	s := store.NewMemoryStore(dir)
	t.Cleanup(func() { s.Close() })
	return s, dir
}

func sampleDocument(workspace string) *models.Document {
	doc := models.NewDocument(workspace)
	doc.Components = append(doc.Components, models.ComponentRecord{
		ID:         "c1",
		Type:       models.TypeInput,
		Properties: &models.InputProps{Value: "Hello"},
	})
	doc.Functionalities = append(doc.Functionalities, models.AIFunctionality{
		ID:                "fn1",
		InputComponentIDs: []*string{models.Ref("c1"), nil},
		SystemPrompt:      "You are helpful.",
	})
	return doc
}

// ─── Documents ───────────────────────────────────────────────

func TestLoad_NotFound(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Load(context.Background(), "missing")
	var nf *store.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("Load() error = %v, want *ErrNotFound", err)
	}
	if nf.Key != "missing" {
		t.Errorf("ErrNotFound.Key = %q, want %q", nf.Key, "missing")
	}
}

func TestSaveAndLoad(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, sampleDocument("default")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Load(ctx, "default")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	c := got.Component("c1")
	if c == nil {
		t.Fatal("Load() lost component c1")
	}
	if v, _ := c.AsTextValue(); v != "Hello" {
		t.Errorf("c1 value = %q, want %q", v, "Hello")
	}
	fn := got.Functionality("fn1")
	if fn == nil || len(fn.InputComponentIDs) != 2 || fn.InputComponentIDs[1] != nil {
		t.Errorf("functionality inputs not preserved: %+v", fn)
	}
}

func TestLoad_ReturnsIsolatedCopy(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	s.Save(ctx, sampleDocument("default"))

	first, _ := s.Load(ctx, "default")
	first.Component("c1").SetValue("mutated")

	second, _ := s.Load(ctx, "default")
	if v, _ := second.Component("c1").AsTextValue(); v != "Hello" {
		t.Errorf("store shared state with caller: value = %q", v)
	}
}

func TestSnapshotSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1 := store.NewMemoryStore(dir)
	s1.Save(ctx, sampleDocument("default"))
	s1.Append(ctx, "default", "fn1", models.Message{Role: models.RoleUser, Content: "hi"})
	if err := s1.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s2 := store.NewMemoryStore(dir)
	defer s2.Close()

	if _, err := s2.Load(ctx, "default"); err != nil {
		t.Fatalf("Load() after restart error = %v", err)
	}
	hist, _ := s2.History(ctx, "default", "fn1")
	if len(hist) != 1 || hist[0].Content != "hi" {
		t.Errorf("History() after restart = %+v, want one message", hist)
	}
}

func TestClose_Idempotent(t *testing.T) {
	s := store.NewMemoryStore("")
	if err := s.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}

// ─── History ─────────────────────────────────────────────────

func TestHistory_AppendOnlyOrder(t *testing.T) {
	for name, h := range map[string]store.HistoryStore{
		"memory":    store.NewMemoryStore(""),
		"ephemeral": store.NewEphemeralHistory(),
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			h.Append(ctx, "w", "fn", models.Message{Role: models.RoleUser, Content: "1"}, models.Message{Role: models.RoleAssistant, Content: "2"})
			h.Append(ctx, "w", "fn", models.Message{Role: models.RoleUser, Content: "3"})
			h.Append(ctx, "w", "other", models.Message{Role: models.RoleUser, Content: "x"})

			got, err := h.History(ctx, "w", "fn")
			if err != nil {
				t.Fatalf("History() error = %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("History() len = %d, want 3", len(got))
			}
			for i, want := range []string{"1", "2", "3"} {
				if got[i].Content != want {
					t.Errorf("History()[%d] = %q, want %q", i, got[i].Content, want)
				}
			}

			if err := h.Reset(ctx, "w", "fn"); err != nil {
				t.Fatalf("Reset() error = %v", err)
			}
			got, _ = h.History(ctx, "w", "fn")
			if len(got) != 0 {
				t.Errorf("History() after Reset len = %d, want 0", len(got))
			}
			other, _ := h.History(ctx, "w", "other")
			if len(other) != 1 {
				t.Errorf("Reset() touched another functionality")
			}
		})
	}
}

func TestEphemeralHistory_ResetWorkspace(t *testing.T) {
	h := store.NewEphemeralHistory()
	ctx := context.Background()
	h.Append(ctx, "a", "fn", models.Message{Role: models.RoleUser, Content: "1"})
	h.Append(ctx, "b", "fn", models.Message{Role: models.RoleUser, Content: "1"})

	h.Append(ctx, "a:b", "fn", models.Message{Role: models.RoleUser, Content: "1"})

	h.ResetWorkspace("a")

	if got, _ := h.History(ctx, "a", "fn"); len(got) != 0 {
		t.Errorf("workspace a history len = %d, want 0", len(got))
	}
	for _, other := range []string{"b", "a:b"} {
		if got, _ := h.History(ctx, other, "fn"); len(got) != 1 {
			t.Errorf("workspace %s history len = %d, want 1", other, len(got))
		}
	}
}

func TestHistory_ColonsDoNotCollide(t *testing.T) {
	for name, h := range map[string]store.HistoryStore{
		"memory":    store.NewMemoryStore(""),
		"ephemeral": store.NewEphemeralHistory(),
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			h.Append(ctx, "a:b", "c", models.Message{Role: models.RoleUser, Content: "first"})
			h.Append(ctx, "a", "b:c", models.Message{Role: models.RoleUser, Content: "second"})

			got, _ := h.History(ctx, "a:b", "c")
			if len(got) != 1 || got[0].Content != "first" {
				t.Errorf("History(a:b, c) = %v, want only first", got)
			}
			h.Reset(ctx, "a", "b:c")
			if got, _ := h.History(ctx, "a:b", "c"); len(got) != 1 {
				t.Errorf("Reset(a, b:c) removed History(a:b, c)")
			}
		})
	}
}
