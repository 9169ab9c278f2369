package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/protocanvas/protocanvas/internal/api/middleware"
	"github.com/protocanvas/protocanvas/internal/runmode"
)

// ══════════════════════════════════════════════════════════════
// ── Run Mode Handlers ────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

func (h *Handlers) StartRunSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.RunMode.Start(r.Context(), middleware.GetWorkspace(r.Context()))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	view, err := s.Render(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusCreated, view)
}

func (h *Handlers) session(w http.ResponseWriter, r *http.Request) (*runmode.Session, bool) {
	s, err := h.RunMode.Get(chi.URLParam(r, "sessionId"))
	if err != nil {
		respondServiceError(w, r, err)
		return nil, false
	}
	return s, true
}

func (h *Handlers) RenderRunSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	view, err := s.Render(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, view)
}

func (h *Handlers) ClickComponent(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	res, err := s.Click(r.Context(), chi.URLParam(r, "componentId"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, res)
}

func (h *Handlers) InputComponent(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var body valueBody
	if err := decodeBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	view, err := s.Input(r.Context(), chi.URLParam(r, "componentId"), body.Value)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, view)
}

func (h *Handlers) NavigateRunSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Navigate(r.Context(), chi.URLParam(r, "frameId")); err != nil {
		respondServiceError(w, r, err)
		return
	}
	view, err := s.Render(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, view)
}

func (h *Handlers) EndRunSession(w http.ResponseWriter, r *http.Request) {
	if err := h.RunMode.End(chi.URLParam(r, "sessionId")); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Live stream ──────────────────────────────────────────────

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = (wsPongWait * 9) / 10
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type wsInbound struct {
	Type        string `json:"type"` // ping | click | input | navigate | render
	ComponentID string `json:"componentId,omitempty"`
	FrameID     string `json:"frameId,omitempty"`
	Value       string `json:"value,omitempty"`
}

type wsOutbound struct {
	Type    string               `json:"type"`
	View    *runmode.FrameView   `json:"view,omitempty"`
	Click   *runmode.ClickResult `json:"click,omitempty"`
	Event   *runmode.Event       `json:"event,omitempty"`
	Message string               `json:"message,omitempty"`
}

// RunSessionStream handles GET /api/run/sessions/{sessionId}/ws. It pushes
// session events and accepts click/input/navigate commands.
func (h *Handlers) RunSessionStream(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, unsubscribe := h.RunMode.Hub().Subscribe(s.ID)
	defer unsubscribe()

	if err := conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	writeCh := make(chan wsOutbound, 32)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer conn.Close()
		ticker := time.NewTicker(wsPingEvery)
		defer ticker.Stop()

		write := func(out wsOutbound) bool {
			if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				return false
			}
			return conn.WriteJSON(out) == nil
		}

		for {
			select {
			case <-ctx.Done():
				return
			case out := <-writeCh:
				if !write(out) {
					return
				}
			case ev, ok := <-events:
				if !ok {
					write(wsOutbound{Type: string(runmode.EventClosed)})
					return
				}
				if !write(wsOutbound{Type: string(ev.Type), Event: &ev}) {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	push := func(out wsOutbound) {
		select {
		case writeCh <- out:
		case <-ctx.Done():
		}
	}

	log.Debug().Str("session", s.ID).Msg("Run session stream opened")
	if view, err := s.Render(ctx); err == nil {
		push(wsOutbound{Type: "view", View: view})
	}

	for {
		var in wsInbound
		if err := conn.ReadJSON(&in); err != nil {
			cancel()
			<-writerDone
			log.Debug().Str("session", s.ID).Msg("Run session stream closed")
			return
		}
		h.handleInbound(ctx, s, in, push)
	}
}

func (h *Handlers) handleInbound(ctx context.Context, s *runmode.Session, in wsInbound, push func(wsOutbound)) {
	fail := func(err error) { push(wsOutbound{Type: "error", Message: err.Error()}) }

	switch strings.ToLower(strings.TrimSpace(in.Type)) {
	case "ping":
		push(wsOutbound{Type: "pong"})
	case "render":
		view, err := s.Render(ctx)
		if err != nil {
			fail(err)
			return
		}
		push(wsOutbound{Type: "view", View: view})
	case "click":
		res, err := s.Click(ctx, in.ComponentID)
		if err != nil {
			fail(err)
			return
		}
		push(wsOutbound{Type: "click", Click: res})
	case "input":
		if _, err := s.Input(ctx, in.ComponentID, in.Value); err != nil {
			fail(err)
		}
	case "navigate":
		if err := s.Navigate(ctx, in.FrameID); err != nil {
			fail(err)
		}
	default:
		push(wsOutbound{Type: "error", Message: "unknown message type " + in.Type})
	}
}
