package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"support-widget/internal/credential"
	"support-widget/internal/hub"
	"support-widget/internal/model"
	"support-widget/internal/support"
)

// WatchHandler streams transcript updates for one conversation over a
// WebSocket. Each connection polls the provider on its own schedule and also
// receives updates broadcast after sends.
type WatchHandler struct {
	Service     *support.Service
	Credentials credential.Source
	Hub         *hub.Hub
	Interval    time.Duration
	Logger      *slog.Logger
}

type clientMessage struct {
	Type string `json:"type"`
}

type serverMessage struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversationId,omitempty"`
	Messages       []model.Message `json:"messages,omitempty"`
	Error          string          `json:"error,omitempty"`
}

func updateEvent(conversationID string, messages []model.Message) serverMessage {
	return serverMessage{Type: "update", ConversationID: conversationID, Messages: messages}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsWriter serializes writes; gorilla connections allow one writer at a time.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) Write(message []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteMessage(websocket.TextMessage, message)
}

func (w *wsWriter) Close() error {
	return w.conn.Close()
}

func (h *WatchHandler) Serve(c *gin.Context) {
	if _, err := credential.Require(h.Credentials); err != nil {
		configurationError(c, err)
		return
	}
	conversationID := c.Query("conversationId")
	if conversationID == "" {
		invalidRequest(c, "conversationId is required")
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	conn := &hub.Connection{ConversationID: conversationID, Writer: &wsWriter{conn: ws}}
	h.Hub.Register(conn)
	defer func() {
		h.Hub.Unregister(conn)
		_ = ws.Close()
	}()

	ws.SetReadLimit(64 * 1024)
	const pongWait = 60 * time.Second
	const writeWait = 10 * time.Second
	pingPeriod := (pongWait * 9) / 10

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deadline := time.Now().Add(writeWait)
				if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					_ = ws.Close()
					return
				}
			}
		}
	}()

	go h.poll(ctx, conversationID, conn.Writer)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "ping":
			out, _ := json.Marshal(serverMessage{Type: "pong"})
			_ = conn.Writer.Write(out)
		}
	}
}

// poll pushes the transcript whenever it differs from what this connection
// last received. Provider failures are reported to the client and polling
// continues.
func (h *WatchHandler) poll(ctx context.Context, conversationID string, w hub.Writer) {
	interval := h.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := ""
	for {
		conv, err := h.Service.GetConversation(ctx, conversationID)
		switch {
		case errors.Is(err, context.Canceled):
			return
		case err != nil:
			h.logger().Warn("watch poll failed", "conversation_id", conversationID, "error", err)
			out, _ := json.Marshal(serverMessage{Type: "error", ConversationID: conversationID, Error: err.Error()})
			if w.Write(out) != nil {
				return
			}
		default:
			messages := support.Flatten(conv)
			if fp := fingerprint(messages); fp != last {
				last = fp
				out, _ := json.Marshal(updateEvent(conversationID, messages))
				if w.Write(out) != nil {
					return
				}
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func fingerprint(messages []model.Message) string {
	if len(messages) == 0 {
		return "0"
	}
	tail := messages[len(messages)-1]
	return fmt.Sprintf("%d|%s|%d", len(messages), tail.ID, tail.Timestamp)
}

func (h *WatchHandler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return h.Logger
}
