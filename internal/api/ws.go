package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sentellent/senti/internal/agent"
	"github.com/sentellent/senti/internal/ingest"
)

const (
	wsReadLimit    = 8 << 20 // attachments travel inline
	wsReadTimeout  = 5 * time.Minute
	wsWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The API binds to localhost by default; browser clients on other
	// origins are the operator's call, not ours.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsMessage is one inbound chat message on a websocket session.
type wsMessage struct {
	Message     string              `json:"message"`
	Attachments []ingest.Attachment `json:"attachments,omitempty"`
}

// wsError is sent when a message cannot be processed. The session
// stays open.
type wsError struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// handleChatWS runs a persistent chat session, streaming loop
// progress (state changes, tool activity, the final reply) as it
// happens.
// GET /v1/chat/ws?user_id=u1
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		s.errorResponse(w, http.StatusBadRequest, "user_id is required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.logger.Info("websocket session opened", "user_id", userID)
	defer s.logger.Info("websocket session closed", "user_id", userID)

	conn.SetReadLimit(wsReadLimit)

	// All writes happen from this goroutine: trace callbacks fire
	// inline from Run, so no writer fan-in is needed.
	send := func(v any) error {
		if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
			return err
		}
		return conn.WriteJSON(v)
	}

	for {
		if err := conn.SetReadDeadline(time.Now().Add(wsReadTimeout)); err != nil {
			return
		}
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			if send(wsError{Type: "error", Content: "invalid message"}) != nil {
				return
			}
			continue
		}

		turn, err := ingest.Normalize(msg.Message, msg.Attachments)
		if err != nil {
			content := "invalid message"
			if errors.Is(err, ingest.ErrEmptyMessage) {
				content = "message is empty"
			}
			if send(wsError{Type: "error", Content: content}) != nil {
				return
			}
			continue
		}

		var writeErr error
		_, err = s.loop.Run(r.Context(), userID, turn, func(ev agent.TraceEvent) {
			if writeErr == nil {
				writeErr = send(ev)
			}
		})
		if err != nil {
			s.logger.Error("turn failed", "user_id", userID, "error", err)
			if send(wsError{Type: "error", Content: "agent error"}) != nil {
				return
			}
			continue
		}
		if writeErr != nil {
			return
		}
	}
}
