package runmode

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/protocanvas/protocanvas/internal/engine"
	"github.com/protocanvas/protocanvas/internal/registry"
	"github.com/protocanvas/protocanvas/internal/store"
)

// ErrNotOnActiveFrame is returned when a click targets a component the
// active frame does not show.
var ErrNotOnActiveFrame = errors.New("component is not on the active frame")

// Session is one Run Mode preview of a workspace.
type Session struct {
	ID        string
	Workspace string
	CreatedAt time.Time

	mgr *Manager

	mu          sync.Mutex
	activeFrame string
	lastSeen    time.Time
}

// FrameView is the rendered active frame.
type FrameView struct {
	SessionID  string                     `json:"sessionId"`
	Workspace  string                     `json:"workspace"`
	FrameID    string                     `json:"frameId,omitempty"`
	FrameLabel string                     `json:"frameLabel,omitempty"`
	Components []registry.View            `json:"components"`
	States     map[string]engine.RunState `json:"states"`
}

// ClickResult reports what a click started.
type ClickResult struct {
	Runs        map[string]string `json:"runs"` // functionality ID → run ID
	NavigatedTo string            `json:"navigatedTo,omitempty"`
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// ActiveFrame returns the frame currently shown, or "" for all components.
func (s *Session) ActiveFrame() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeFrame
}

// Render walks the active frame's components and renders each through the
// registry, along with the run state of every functionality.
func (s *Session) Render(ctx context.Context) (*FrameView, error) {
	doc, err := s.mgr.docs.Get(ctx, s.Workspace)
	if err != nil {
		return nil, err
	}

	active := s.ActiveFrame()
	view := &FrameView{
		SessionID:  s.ID,
		Workspace:  s.Workspace,
		FrameID:    active,
		Components: []registry.View{},
		States:     make(map[string]engine.RunState, len(doc.Functionalities)),
	}
	if f := doc.Frame(active); f != nil {
		view.FrameLabel = f.Label
	}

	comps := doc.ComponentsInFrame(active)
	for i := range comps {
		view.Components = append(view.Components, registry.Render(&comps[i]))
	}
	for _, fn := range doc.Functionalities {
		view.States[fn.ID] = s.mgr.engine.State(s.Workspace, fn.ID)
	}
	return view, nil
}

// Click activates a component: every functionality it triggers is started
// in the background, then navigation happens without waiting for them.
// Only components rendered on the active frame can be clicked.
func (s *Session) Click(ctx context.Context, componentID string) (*ClickResult, error) {
	doc, err := s.mgr.docs.Get(ctx, s.Workspace)
	if err != nil {
		return nil, err
	}
	c := doc.Component(componentID)
	if c == nil {
		return nil, &store.ErrNotFound{Entity: "component", Key: componentID}
	}
	if active := s.ActiveFrame(); active != "" && c.FrameID != active {
		return nil, fmt.Errorf("%w: %s not on %s", ErrNotOnActiveFrame, componentID, active)
	}

	res := &ClickResult{Runs: make(map[string]string)}
	for _, fn := range doc.TriggeredBy(componentID) {
		res.Runs[fn.ID] = s.mgr.engine.Dispatch(s.Workspace, fn.ID)
	}

	if target := c.NavigateTarget(); target != "" {
		if doc.Frame(target) != nil {
			s.setFrame(target)
			res.NavigatedTo = target
		}
	}
	return res, nil
}

// Input records a value entered into a component and returns its new view.
func (s *Session) Input(ctx context.Context, componentID, value string) (*registry.View, error) {
	c, err := s.mgr.docs.SetComponentValue(ctx, s.Workspace, componentID, value)
	if err != nil {
		return nil, err
	}
	v := registry.Render(c)
	return &v, nil
}

// Navigate swaps the active frame.
func (s *Session) Navigate(ctx context.Context, frameID string) error {
	doc, err := s.mgr.docs.Get(ctx, s.Workspace)
	if err != nil {
		return err
	}
	if doc.Frame(frameID) == nil {
		return &store.ErrNotFound{Entity: "frame", Key: frameID}
	}
	s.setFrame(frameID)
	return nil
}

func (s *Session) setFrame(frameID string) {
	s.mu.Lock()
	s.activeFrame = frameID
	s.mu.Unlock()
	s.mgr.hub.Publish(Event{
		Type:      EventNavigate,
		SessionID: s.ID,
		Workspace: s.Workspace,
		FrameID:   frameID,
	})
}
