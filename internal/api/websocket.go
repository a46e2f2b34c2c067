package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/sprintpilot/internal/service"
)

// WebSocket frame types.
const (
	FrameChat   = "chat"   // client -> server: one chat request
	FrameRound  = "round"  // server -> client: progress after a provider call
	FrameResult = "result" // server -> client: the finished turn
	FrameError  = "error"  // server -> client: the turn failed
)

// Frame is one WebSocket message in either direction. ID echoes the
// client's request id on every reply to it.
type Frame struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrorPayload is the payload of an error frame.
type ErrorPayload struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// writeTimeout bounds each frame write.
const writeTimeout = 10 * time.Second

// handleWebSocket serves chat turns over one connection. Frames are handled
// one at a time; a client wanting parallel turns opens more connections.
// Browsers cannot set headers on the upgrade request, so the user id may
// also come from the user_id query parameter.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("ws")
	userID := r.Header.Get(UserHeader)
	if userID == "" {
		userID = r.URL.Query().Get("user_id")
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	logger := s.logger.With("workspace", workspaceID, "remote", r.RemoteAddr)
	logger.Debug("websocket connected")

	done := make(chan struct{})
	defer close(done)
	go s.keepAlive(conn, done)

	ctx := r.Context()
	for {
		var in Frame
		if err := conn.ReadJSON(&in); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("websocket read ended", "error", err)
			}
			return
		}

		if in.Type != FrameChat {
			if err := writeFrame(conn, in.ID, FrameError, ErrorPayload{
				Category: "invalid_input",
				Message:  fmt.Sprintf("unsupported frame type %q", in.Type),
			}); err != nil {
				return
			}
			continue
		}

		var body chatBody
		if err := json.Unmarshal(in.Payload, &body); err != nil {
			if err := writeFrame(conn, in.ID, FrameError, ErrorPayload{Category: "invalid_input", Message: err.Error()}); err != nil {
				return
			}
			continue
		}

		req := body.request(workspaceID, userID)
		var writeErr error
		req.OnRound = func(ev service.RoundEvent) {
			if writeErr == nil {
				writeErr = writeFrame(conn, in.ID, FrameRound, ev)
			}
		}

		result, err := s.app.Chat.Chat(ctx, req)
		if writeErr != nil {
			logger.Debug("websocket write failed", "error", writeErr)
			return
		}
		if err != nil {
			_, body := s.errorResponse(err)
			if body.Category == "internal" {
				logger.Error("chat turn failed", "error", err)
			}
			writeErr = writeFrame(conn, in.ID, FrameError, ErrorPayload{Category: body.Category, Message: body.Error})
		} else {
			writeErr = writeFrame(conn, in.ID, FrameResult, result)
		}
		if writeErr != nil {
			logger.Debug("websocket write failed", "error", writeErr)
			return
		}
	}
}

// keepAlive pings the peer until done is closed. WriteControl may run
// concurrently with the frame writer.
func (s *Server) keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	if s.pingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, id, typ string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", typ, err)
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(Frame{ID: id, Type: typ, Payload: data})
}
