package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/chadiek/smileright-voice/internal/agent"
)

// wsMessage is the text-channel frame. Client sends "utterance" and "bye"; the server sends
// "response", "end" and "error".
type wsMessage struct {
	Type       string                  `json:"type"`
	SessionID  string                  `json:"session_id,omitempty"`
	Text       string                  `json:"text,omitempty"`
	Seq        uint64                  `json:"seq,omitempty"`
	Language   string                  `json:"language,omitempty"`
	Transition *agent.TransitionRecord `json:"transition,omitempty"`
	Error      string                  `json:"error,omitempty"`
}

const (
	wsReadLimit  = 16 << 10
	wsOpenFailed = "could not start a session"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Allow any origin for demo use; restrict in production
		return true
	},
}

// serveWebSocket runs one session over a WebSocket. ?session= picks the id and ?caller= sets
// the caller id. Closing the socket disconnects the session.
func (s *Server) serveWebSocket(c echo.Context) error {
	conn, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.Warn("ws upgrade error", zap.Error(err))
		return nil
	}
	defer func() { _ = conn.Close() }()
	conn.SetReadLimit(wsReadLimit)

	q := c.Request().URL.Query()
	sess, out, err := s.mgr.Open(context.Background(), q.Get("session"), q.Get("caller"))
	if err != nil {
		s.log.Warn("ws open session failed", zap.String("session_id", q.Get("session")), zap.Error(err))
		_ = conn.WriteJSON(wsMessage{Type: "error", Error: wsOpenFailed})
		return nil
	}
	defer sess.Close()
	log := s.log.With(zap.String("session_id", sess.ID()))
	log.Info("ws session opened")

	if err := conn.WriteJSON(wsMessage{Type: "response", SessionID: sess.ID(), Text: out.Text()}); err != nil {
		return nil
	}

	for {
		var m wsMessage
		if err := conn.ReadJSON(&m); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Info("ws read ended", zap.Error(err))
			}
			return nil
		}
		switch strings.ToLower(m.Type) {
		case "bye":
			return nil
		case "utterance":
		default:
			_ = conn.WriteJSON(wsMessage{Type: "error", Error: "unknown message type " + m.Type})
			continue
		}

		ctx, cancel := context.WithTimeout(c.Request().Context(), turnTimeout)
		out, err := sess.Say(ctx, agent.Utterance{Seq: m.Seq, Text: m.Text})
		cancel()
		if err != nil {
			if errors.Is(err, agent.ErrSessionClosed) {
				_ = conn.WriteJSON(wsMessage{Type: "end", SessionID: sess.ID()})
				return nil
			}
			log.Warn("ws turn failed", zap.Error(err))
			_ = conn.WriteJSON(wsMessage{Type: "error", SessionID: sess.ID(), Error: "turn failed"})
			continue
		}
		if out.Dropped {
			continue
		}
		reply := wsMessage{
			Type:       "response",
			SessionID:  sess.ID(),
			Text:       out.Text(),
			Seq:        m.Seq,
			Language:   string(out.Language),
			Transition: out.Transition,
		}
		if out.Ended {
			reply.Type = "end"
		}
		if err := conn.WriteJSON(reply); err != nil {
			return nil
		}
		if out.Ended {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "booked"))
			return nil
		}
	}
}
