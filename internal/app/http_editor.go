package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"inkwell/api/internal/editor"
	"inkwell/api/internal/section"
)

const wsPingInterval = 30 * time.Second

func (s *HTTPServer) handleOpenEditorSession(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		Filename string `json:"filename"`
		Text     string `json:"text"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	payload, err := s.service.OpenEditorSession(r.Context(), session, body.Filename, body.Text)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, payload)
}

func (s *HTTPServer) handleEditorSession(w http.ResponseWriter, r *http.Request, session Session, id string, parts []string) {
	if len(parts) == 4 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.EditorSnapshot(session, id)
			if err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
		case http.MethodDelete:
			if err := s.service.CloseEditorSession(session, id); err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) != 5 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	if parts[4] == "ws" && r.Method == http.MethodGet {
		s.handleEditorSocket(w, r, session, id)
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	var (
		payload map[string]any
		err     error
	)
	switch parts[4] {
	case "text":
		var body struct {
			Text string `json:"text"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err = s.service.EditorText(session, id, body.Text)
	case "cursor":
		var body struct {
			Offset int    `json:"offset"`
			Cause  string `json:"cause"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err = s.service.EditorCursor(session, id, body.Offset, body.Cause)
	case "generate":
		var body struct {
			Mode      string `json:"mode"`
			MainPoint string `json:"main_point"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err = s.service.EditorGenerate(r.Context(), session, id, body.Mode, body.MainPoint)
		if err == nil {
			writeJSON(w, http.StatusAccepted, payload)
			return
		}
	case "flush":
		payload, err = s.service.EditorFlush(session, id)
	case "save":
		var body struct {
			Filename string `json:"filename"`
			Title    string `json:"title"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err = s.service.SaveEditorSession(r.Context(), session, id, body.Filename, body.Title)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// editorEvent is one message pushed to a websocket client.
type editorEvent struct {
	Type     string            `json:"type"`
	Version  uint64            `json:"version,omitempty"`
	Sections []section.Section `json:"sections,omitempty"`
	Index    *int              `json:"index,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// clientMessage is one message received from a websocket client.
type clientMessage struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	Offset    int    `json:"offset"`
	Cause     string `json:"cause"`
	Mode      string `json:"mode"`
	MainPoint string `json:"main_point"`
}

func sectionsMessage(snap *editor.Snapshot) editorEvent {
	return editorEvent{Type: "sections", Version: snap.Version, Sections: snap.Sections}
}

func currentMessage(idx int, ok bool) editorEvent {
	ev := editorEvent{Type: "current_section"}
	if ok {
		ev.Index = &idx
	}
	return ev
}

func (s *HTTPServer) handleEditorSocket(w http.ResponseWriter, r *http.Request, session Session, id string) {
	es, err := s.service.editorSession(session, id)
	if err != nil {
		respondError(w, err)
		return
	}

	opts := &websocket.AcceptOptions{}
	if s.corsOrigin == "*" {
		opts.InsecureSkipVerify = true
	} else if s.corsOrigin != "" {
		opts.OriginPatterns = []string{s.corsOrigin}
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		s.logger.Warn("websocket accept", "session_id", id, "err", err)
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events := make(chan editorEvent, 64)
	push := func(ev editorEvent) {
		select {
		case events <- ev:
		default:
			s.logger.Warn("dropping editor event for slow client", "session_id", id, "type", ev.Type)
		}
	}
	unsubscribe := es.Subscribe(editor.NotifierFuncs{
		OnSections: func(snap *editor.Snapshot) { push(sectionsMessage(snap)) },
		OnCurrent:  func(idx int, ok bool) { push(currentMessage(idx, ok)) },
		OnFailed: func(idx int, err error) {
			push(editorEvent{Type: "generation_failed", Index: &idx, Error: err.Error()})
		},
	})
	defer unsubscribe()

	go s.readEditorSocket(ctx, cancel, conn, session, id)

	if err := wsjson.Write(ctx, conn, sectionsMessage(es.Snapshot())); err != nil {
		return
	}
	idx, ok := es.Current()
	if err := wsjson.Write(ctx, conn, currentMessage(idx, ok)); err != nil {
		return
	}

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev := <-events:
			if err := wsjson.Write(ctx, conn, ev); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := s.service.editorSession(session, id); err != nil {
				conn.Close(websocket.StatusGoingAway, "session closed")
				return
			}
			if err := conn.Ping(ctx); err != nil {
				return
			}
		}
	}
}

// readEditorSocket applies client messages until the connection fails.
func (s *HTTPServer) readEditorSocket(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, session Session, id string) {
	defer cancel()
	for {
		var msg clientMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				s.logger.Debug("websocket read", "session_id", id, "err", err)
			}
			return
		}

		var err error
		switch msg.Type {
		case "text":
			_, err = s.service.EditorText(session, id, msg.Text)
		case "cursor":
			_, err = s.service.EditorCursor(session, id, msg.Offset, msg.Cause)
		case "flush":
			_, err = s.service.EditorFlush(session, id)
		case "generate":
			_, err = s.service.EditorGenerate(ctx, session, id, msg.Mode, msg.MainPoint)
		default:
			err = errors.New("unknown message type " + msg.Type)
		}
		if err != nil {
			_, code, message, _ := mapError(err)
			if code == "SERVER_ERROR" {
				message = err.Error()
			}
			if werr := wsjson.Write(ctx, conn, editorEvent{Type: "error", Error: message}); werr != nil {
				return
			}
		}
	}
}
