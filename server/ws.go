package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/xhad/sitebot/internal/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The widget embeds on arbitrary origins.
		return true
	},
}

// wsMessage is the frame format in both directions. Inbound type is
// "chat"; outbound types are "status", "response" and "error".
type wsMessage struct {
	Type      string   `json:"type"`
	BotID     string   `json:"botId,omitempty"`
	SessionID string   `json:"sessionId,omitempty"`
	Content   string   `json:"content"`
	Sources   []string `json:"sources,omitempty"`
}

// handleWebSocket runs a persistent chat session over one connection.
// Each inbound frame is handled synchronously; ordering within a
// session matters more than per-message latency.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sessionID := uuid.NewString()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read failed", "error", err)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.send(conn, wsMessage{Type: "error", Content: "invalid message format"})
			continue
		}
		if msg.SessionID != "" {
			sessionID = msg.SessionID
		}

		s.handleWSChat(c, conn, msg, sessionID)
	}
}

func (s *Server) handleWSChat(c *gin.Context, conn *websocket.Conn, msg wsMessage, sessionID string) {
	if msg.BotID == "" || strings.TrimSpace(msg.Content) == "" {
		s.send(conn, wsMessage{Type: "error", Content: "botId and content are required"})
		return
	}

	bot, err := s.records.GetBot(c.Request.Context(), msg.BotID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			s.send(conn, wsMessage{Type: "error", Content: "bot not found"})
		} else {
			s.logger.Error("bot lookup failed", "bot", msg.BotID, "error", err)
			s.send(conn, wsMessage{Type: "error", Content: "internal error"})
		}
		return
	}

	s.send(conn, wsMessage{Type: "status", Content: "thinking"})

	reply, sources := s.answer(c.Request.Context(), bot, sessionID, msg.Content)

	s.send(conn, wsMessage{
		Type:      "response",
		SessionID: sessionID,
		Content:   reply,
		Sources:   sources,
	})
}

func (s *Server) send(conn *websocket.Conn, msg wsMessage) {
	if err := conn.WriteJSON(msg); err != nil {
		s.logger.Debug("websocket write failed", "error", err)
	}
}
