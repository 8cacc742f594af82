package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"support-widget/internal/credential"
	"support-widget/internal/hub"
	"support-widget/internal/intercom"
	"support-widget/internal/middleware"
	"support-widget/internal/model"
	"support-widget/internal/support"
)

// ConversationHandler exposes fetch and send over HTTP. It is the only layer
// that turns errors into responses.
type ConversationHandler struct {
	Service     *support.Service
	Credentials credential.Source
	// Hub receives an update after each successful send. Optional.
	Hub    *hub.Hub
	Logger *slog.Logger
	Now    func() time.Time
}

type sendBody struct {
	Messages       []json.RawMessage `json:"messages"`
	ConversationID string            `json:"conversationId"`
}

// inboundMessage holds only what the write path reads from the latest
// message, so unrelated fields in the caller's history never fail decoding.
type inboundMessage struct {
	Content string `json:"content"`
	UserID  string `json:"userId"`
}

func (h *ConversationHandler) Fetch(c *gin.Context) {
	if _, err := credential.Require(h.Credentials); err != nil {
		configurationError(c, err)
		return
	}

	conversationID := c.Query("conversationId")
	if conversationID == "" {
		invalidRequest(c, "conversationId is required")
		return
	}

	conv, err := h.Service.GetConversation(providerContext(c), conversationID)
	if err != nil {
		if errors.Is(err, credential.ErrNotConfigured) {
			configurationError(c, err)
			return
		}
		h.logger().Error("error retrieving conversation",
			"request_id", middleware.RequestIDFromContext(c),
			"conversation_id", conversationID,
			"error", err)
		body := gin.H{"error": "Failed to retrieve conversation", "details": err.Error()}
		if upErr, ok := intercom.AsUpstream(err); ok && upErr.Status != 0 {
			body["status"] = upErr.Status
		}
		c.JSON(http.StatusInternalServerError, body)
		return
	}

	c.JSON(http.StatusOK, conversationResponse(conv))
}

func (h *ConversationHandler) Send(c *gin.Context) {
	var body sendBody
	if err := c.ShouldBindJSON(&body); err != nil {
		invalidRequest(c, "Invalid request")
		return
	}

	if _, err := credential.Require(h.Credentials); err != nil {
		configurationError(c, err)
		return
	}

	if len(body.Messages) == 0 {
		invalidRequest(c, "Messages are required")
		return
	}

	var latest inboundMessage
	if err := json.Unmarshal(body.Messages[len(body.Messages)-1], &latest); err != nil || latest.Content == "" || latest.UserID == "" {
		invalidRequest(c, "Latest message must have content and userId")
		return
	}

	ref := support.RefFromID(body.ConversationID)
	log := h.logger().With(
		"request_id", middleware.RequestIDFromContext(c),
		"user", latest.UserID,
		"conversation", ref.String(),
	)
	log.Info("processing message")

	conv, err := h.Service.Send(providerContext(c), ref, latest.UserID, latest.Content)
	if err != nil {
		log.Error("error processing message", "error", err)
		h.sendFailure(c, body.Messages, err)
		return
	}

	resp := conversationResponse(conv)
	h.broadcast(conv.ID, resp["messages"].([]model.Message))
	c.JSON(http.StatusOK, resp)
}

// sendFailure answers with the caller's history, unchanged, plus one apology
// message so the client can render a recoverable failure.
func (h *ConversationHandler) sendFailure(c *gin.Context, history []json.RawMessage, err error) {
	messages := make([]any, 0, len(history)+1)
	for _, raw := range history {
		messages = append(messages, raw)
	}
	messages = append(messages, model.Message{
		ID:        uuid.NewString(),
		Role:      model.RoleBot,
		Content:   model.ApologyText,
		Timestamp: h.now().Unix(),
		UserID:    model.SystemUserID,
	})

	c.JSON(http.StatusInternalServerError, gin.H{
		"messages": messages,
		"error":    err.Error(),
		"debug": gin.H{
			"context_used": false,
			"error":        err.Error(),
		},
	})
}

func (h *ConversationHandler) broadcast(conversationID string, messages []model.Message) {
	if h.Hub == nil || h.Hub.Watchers(conversationID) == 0 {
		return
	}
	out, err := json.Marshal(updateEvent(conversationID, messages))
	if err != nil {
		return
	}
	h.Hub.Broadcast(conversationID, out)
}

func (h *ConversationHandler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return h.Logger
}

func (h *ConversationHandler) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

// providerContext keeps request values but not cancellation: a client that
// disconnects mid-send must not abort a write the provider may already have
// applied. The HTTP client timeout still bounds each call.
func providerContext(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}

func conversationResponse(conv *intercom.Conversation) gin.H {
	return gin.H{
		"conversationId": conv.ID,
		"messages":       support.Flatten(conv),
		"conversation":   conv.Document(),
	}
}

func configurationError(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "code": "configuration_error"})
}

func invalidRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message, "code": "invalid_request"})
}
