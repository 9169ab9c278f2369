// Package engine executes AI functionalities: it resolves the configured
// inputs against the current document, assembles the conversation, calls the
// chat provider and writes the transcript back into the output component.
//
// Runs are never serialized. Two runs targeting the same output both write
// back and the last write is the one that stays visible.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/protocanvas/protocanvas/internal/document"
	"github.com/protocanvas/protocanvas/internal/provider"
	"github.com/protocanvas/protocanvas/internal/store"
	"github.com/protocanvas/protocanvas/internal/structured"
	"github.com/protocanvas/protocanvas/pkg/models"
)

var tracer = otel.Tracer("protocanvas/engine")

// ErrFunctionalityNotFound is wrapped when the functionality id is unknown.
var ErrFunctionalityNotFound = errors.New("functionality not found")

// Documents is the document access the engine needs.
type Documents interface {
	Get(ctx context.Context, workspace string) (*models.Document, error)
	Mutate(ctx context.Context, workspace string, fn func(doc *models.Document) error) (*models.Document, error)
}

// Status is the phase of a functionality run.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusResolving   Status = "resolving"
	StatusCalling     Status = "calling"
	StatusWritingBack Status = "writing_back"
)

// RunState is the per-functionality state shown next to the trigger. Error
// holds the message of the last failed run and is cleared by the next one.
type RunState struct {
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	InFlight  int       `json:"inFlight"`
	LastRunID string    `json:"lastRunId,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// EventType classifies engine events.
type EventType string

const (
	EventState  EventType = "state"
	EventOutput EventType = "output"
)

// Event is published on every state change and write-back.
type Event struct {
	Type            EventType `json:"type"`
	Workspace       string    `json:"workspace"`
	FunctionalityID string    `json:"functionalityId,omitempty"`
	RunID           string    `json:"runId,omitempty"`
	OutputID        string    `json:"outputId,omitempty"`
	Content         string    `json:"content,omitempty"`
	State           *RunState `json:"state,omitempty"`
	Time            time.Time `json:"time"`
}

// Listener receives engine events. It must not block.
type Listener func(Event)

// Outcome is the result of one run.
type Outcome struct {
	RunID           string            `json:"runId"`
	FunctionalityID string            `json:"functionalityId"`
	OutputID        string            `json:"outputId,omitempty"`
	UserMessage     string            `json:"userMessage"`
	Reply           *models.ChatReply `json:"reply"`
	History         []models.Message  `json:"history"`
	Written         bool              `json:"written"`
}

// Engine runs functionalities.
type Engine struct {
	docs    Documents
	chat    provider.ChatProvider
	history store.HistoryStore
	cells   *Cells

	mu        sync.Mutex
	states    map[string]*RunState
	listeners []Listener

	wg sync.WaitGroup
}

// New creates an engine. chat should already carry the fallback policy
// (see provider.Router.For).
func New(docs Documents, chat provider.ChatProvider, history store.HistoryStore) *Engine {
	return &Engine{
		docs:    docs,
		chat:    chat,
		history: history,
		cells:   NewCells(),
		states:  make(map[string]*RunState),
	}
}

// Subscribe registers a listener for every subsequent event.
func (e *Engine) Subscribe(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

// Cells exposes the latest write-back per output.
func (e *Engine) Cells() *Cells { return e.cells }

func (e *Engine) emit(ev Event) {
	ev.Time = time.Now().UTC()
	e.mu.Lock()
	ls := make([]Listener, len(e.listeners))
	copy(ls, e.listeners)
	e.mu.Unlock()
	for _, l := range ls {
		l(ev)
	}
}

// ── Run state ───────────────────────────────────────────────

func stateKey(workspace, fnID string) string { return workspace + ":" + fnID }

// State returns the run state of a functionality. Unknown functionalities
// are idle.
func (e *Engine) State(workspace, fnID string) RunState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.states[stateKey(workspace, fnID)]; ok {
		return *st
	}
	return RunState{Status: StatusIdle}
}

func (e *Engine) begin(workspace, fnID, runID string) {
	e.update(workspace, fnID, runID, func(st *RunState) {
		st.InFlight++
		st.Status = StatusResolving
		st.Error = ""
		st.LastRunID = runID
	})
}

func (e *Engine) setStatus(workspace, fnID, runID string, s Status) {
	e.update(workspace, fnID, runID, func(st *RunState) {
		st.Status = s
	})
}

func (e *Engine) finish(workspace, fnID, runID string, errMsg string) {
	e.update(workspace, fnID, runID, func(st *RunState) {
		if st.InFlight > 0 {
			st.InFlight--
		}
		if st.InFlight == 0 {
			st.Status = StatusIdle
		}
		st.Error = errMsg
	})
}

func (e *Engine) update(workspace, fnID, runID string, fn func(st *RunState)) {
	e.mu.Lock()
	k := stateKey(workspace, fnID)
	st, ok := e.states[k]
	if !ok {
		st = &RunState{Status: StatusIdle}
		e.states[k] = st
	}
	fn(st)
	st.UpdatedAt = time.Now().UTC()
	snapshot := *st
	e.mu.Unlock()

	e.emit(Event{
		Type:            EventState,
		Workspace:       workspace,
		FunctionalityID: fnID,
		RunID:           runID,
		State:           &snapshot,
	})
}

// ── History ─────────────────────────────────────────────────

// History returns the transcript of a functionality.
func (e *Engine) History(ctx context.Context, workspace, fnID string) ([]models.Message, error) {
	return e.history.History(ctx, workspace, fnID)
}

// ResetHistory starts a fresh conversation for a functionality.
func (e *Engine) ResetHistory(ctx context.Context, workspace, fnID string) error {
	return e.history.Reset(ctx, workspace, fnID)
}

// ResetWorkspace drops every transcript of a workspace when the history
// store is session scoped. Persistent stores are left alone.
func (e *Engine) ResetWorkspace(workspace string) {
	if r, ok := e.history.(interface{ ResetWorkspace(string) }); ok {
		r.ResetWorkspace(workspace)
	}
}

// ── Preview ─────────────────────────────────────────────────

// InputPreview shows what a run would send without calling the provider.
type InputPreview struct {
	Inputs      []ResolvedInput   `json:"inputs"`
	Values      map[string]string `json:"values"`
	UserMessage string            `json:"userMessage"`
	Error       string            `json:"error,omitempty"`
}

// Preview resolves the inputs of a functionality.
func (e *Engine) Preview(ctx context.Context, workspace, fnID string) (*InputPreview, error) {
	doc, err := e.docs.Get(ctx, workspace)
	if err != nil {
		return nil, err
	}
	fn := doc.Functionality(fnID)
	if fn == nil {
		return nil, fmt.Errorf("%w: %s", ErrFunctionalityNotFound, fnID)
	}
	inputs := ResolveInputs(fn, doc)
	p := &InputPreview{Inputs: inputs, Values: ResolveInputMap(fn, doc)}
	if p.Inputs == nil {
		p.Inputs = []ResolvedInput{}
	}
	p.UserMessage, err = BuildUserMessage(inputs)
	if err != nil {
		p.Error = err.Error()
	}
	return p, nil
}

// ── Execution ───────────────────────────────────────────────

// Process runs a functionality and returns once the output component holds
// the new transcript. Failures are also recorded in the run state.
func (e *Engine) Process(ctx context.Context, workspace, fnID string) (*Outcome, error) {
	runID := uuid.New().String()
	e.begin(workspace, fnID, runID)
	return e.run(ctx, workspace, fnID, runID)
}

// Dispatch starts a run in the background and returns its id immediately.
// The run is not cancelled when the caller goes away.
func (e *Engine) Dispatch(workspace, fnID string) string {
	runID := uuid.New().String()
	e.begin(workspace, fnID, runID)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if _, err := e.run(context.Background(), workspace, fnID, runID); err != nil {
			log.Warn().
				Err(err).
				Str("workspace", workspace).
				Str("functionality", fnID).
				Str("run", runID).
				Msg("Background run failed")
		}
	}()
	return runID
}

// Wait blocks until every dispatched run has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) run(ctx context.Context, workspace, fnID, runID string) (out *Outcome, err error) {
	ctx, span := tracer.Start(ctx, "engine.process")
	span.SetAttributes(
		attribute.String("protocanvas.workspace", workspace),
		attribute.String("protocanvas.functionality", fnID),
		attribute.String("protocanvas.run", runID),
	)
	defer func() {
		msg := ""
		if err != nil {
			msg = err.Error()
			span.RecordError(err)
			span.SetStatus(codes.Error, msg)
		} else if out != nil && out.Reply != nil && out.Reply.Error != "" {
			msg = out.Reply.Error
		}
		e.finish(workspace, fnID, runID, msg)
		span.End()
	}()

	// Resolving
	doc, err := e.docs.Get(ctx, workspace)
	if err != nil {
		return nil, err
	}
	fn := doc.Functionality(fnID)
	if fn == nil {
		return nil, fmt.Errorf("%w: %s", ErrFunctionalityNotFound, fnID)
	}
	inputs := ResolveInputs(fn, doc)
	userMsg, err := BuildUserMessage(inputs)
	if err != nil {
		return nil, err
	}

	// Calling
	e.setStatus(workspace, fnID, runID, StatusCalling)
	prior, err := e.history.History(ctx, workspace, fnID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	user := models.Message{Role: models.RoleUser, Content: userMsg}
	msgs := make([]models.Message, 0, len(prior)+1)
	msgs = append(append(msgs, prior...), user)

	reply, err := structured.Complete(ctx, e.chat, models.ChatRequest{
		SystemPrompt: fn.SystemPrompt,
		Messages:     msgs,
		Images:       CollectImages(inputs),
		Schema:       fn.OutputSchema,
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("provider.name", reply.Provider),
		attribute.Bool("provider.fallback", reply.Fallback),
	)

	// WritingBack: history first, then the output component.
	e.setStatus(workspace, fnID, runID, StatusWritingBack)
	assistant := models.Message{Role: models.RoleAssistant, Content: reply.Response}
	if err := e.history.Append(ctx, workspace, fnID, user, assistant); err != nil {
		return nil, fmt.Errorf("append history: %w", err)
	}
	transcript, err := e.history.History(ctx, workspace, fnID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	out = &Outcome{
		RunID:           runID,
		FunctionalityID: fnID,
		OutputID:        fn.Output(),
		UserMessage:     userMsg,
		Reply:           reply,
		History:         transcript,
	}
	if out.OutputID == "" {
		return out, nil
	}

	content, err := EncodeTranscript(transcript)
	if err != nil {
		return nil, err
	}
	out.Written, err = e.writeBack(ctx, workspace, fnID, runID, out.OutputID, content)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("workspace", workspace).
		Str("functionality", fnID).
		Str("output", out.OutputID).
		Str("provider", reply.Provider).
		Bool("fallback", reply.Fallback).
		Bool("written", out.Written).
		Msg("Functionality run complete")
	return out, nil
}

// writeBack overwrites the output component content. An output that no
// longer exists, or cannot display content, is skipped.
func (e *Engine) writeBack(ctx context.Context, workspace, fnID, runID, outputID, content string) (bool, error) {
	written := false
	_, err := e.docs.Mutate(ctx, workspace, func(doc *models.Document) error {
		c := doc.Component(outputID)
		if c == nil || !c.SetContent(content) {
			return document.ErrSkipSave
		}
		e.cells.Store(workspace, outputID, Cell{
			RunID:           runID,
			FunctionalityID: fnID,
			Content:         content,
			WrittenAt:       time.Now().UTC(),
		})
		written = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("write back %s: %w", outputID, err)
	}
	if written {
		e.emit(Event{
			Type:            EventOutput,
			Workspace:       workspace,
			FunctionalityID: fnID,
			RunID:           runID,
			OutputID:        outputID,
			Content:         content,
		})
	}
	return written, nil
}

// EncodeTranscript serializes a transcript the way output components store
// it: a JSON array of {role, content} objects.
func EncodeTranscript(msgs []models.Message) (string, error) {
	if msgs == nil {
		msgs = []models.Message{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(msgs); err != nil {
		return "", fmt.Errorf("encode transcript: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
