package widget

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/wealth-widget/internal/identity"
)

const wsWriteTimeout = 5 * time.Second

// wsMessage is an inbound socket frame.
type wsMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

type stateFrame struct {
	Type string `json:"type"`
	View
}

type replyFrame struct {
	Type string `json:"type"`
	MessageResponse
}

type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// ServeWebSocket handles GET /ws/widget. The socket carries the same turns as
// POST /api/widget/message for clients that prefer a persistent connection.
func (h *Handler) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	visitorID, tabID, ok := requestIdentity(w, r)
	if !ok {
		return
	}
	slog.Info("WebSocket connection request", "visitor_id", visitorID, "session_id", tabID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "visitor_id", visitorID)
		return
	}
	ws.SetReadLimit(h.maxBodySize)
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "visitor_id", visitorID)
		}
	}()

	h.conns.Register(visitorID, tabID, ws)
	defer h.conns.Unregister(visitorID, tabID, ws)

	ctx := r.Context()
	view, err := h.svc.Start(ctx, visitorID, tabID)
	if err != nil {
		_, code := statusForError(err)
		slog.Warn("Widget session unavailable", "error", err, "visitor_id", visitorID, "session_id", tabID)
		if err := writeJSON(ctx, ws, errorFrame{Type: "error", Error: code}); err != nil {
			slog.Debug("Failed to send session error", "error", err)
		}
		return
	}
	if err := writeJSON(ctx, ws, stateFrame{Type: "state", View: view}); err != nil {
		slog.Debug("Failed to send initial state", "error", err, "visitor_id", visitorID)
		return
	}

	h.inputLoop(ctx, ws, visitorID, tabID)
	slog.Info("Widget socket session ended", "visitor_id", visitorID, "session_id", tabID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigins)
	return false
}

func (h *Handler) inputLoop(ctx context.Context, ws *websocket.Conn, visitorID, tabID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				slog.Debug("WebSocket closed by client", "visitor_id", visitorID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "visitor_id", visitorID)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			if err := writeJSON(ctx, ws, errorFrame{Type: "error", Error: "invalid_message"}); err != nil {
				return
			}
			continue
		}

		var frame any
		switch msg.Type {
		case "message":
			if !h.rateLimiter.Allow(visitorID) {
				frame = errorFrame{Type: "error", Error: "rate_limited"}
				break
			}
			reply, err := h.svc.Send(ctx, visitorID, tabID, msg.Content)
			if err != nil {
				status, code := statusForError(err)
				if status == http.StatusInternalServerError {
					slog.Error("Widget socket turn failed", "error", err, "visitor_id", visitorID, "session_id", tabID)
				}
				frame = errorFrame{Type: "error", Error: code}
				break
			}
			frame = replyFrame{Type: "reply", MessageResponse: newMessageResponse(reply)}
		case "ping":
			frame = map[string]string{"type": "pong"}
		default:
			frame = errorFrame{Type: "error", Error: "unknown_message_type"}
		}

		if err := writeJSON(ctx, ws, frame); err != nil {
			slog.Debug("Failed to write socket frame", "error", err, "visitor_id", visitorID)
			return
		}
	}
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}
