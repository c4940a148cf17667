package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sentio/internal/domain"
	"sentio/internal/service"
)

// ChatHandler mantiene dependencias para los endpoints del chatbot.
type ChatHandler struct {
	logger *zap.Logger
	chat   *service.ChatService
}

// NewChatHandler crea una instancia de ChatHandler con dependencias necesarias.
func NewChatHandler(logger *zap.Logger, chat *service.ChatService) *ChatHandler {
	return &ChatHandler{logger: logger, chat: chat}
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message" binding:"required"`
}

// PostMessage maneja POST /chat. Con ?stream=true responde por SSE.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid chat request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if c.Query("stream") == "true" {
		h.stream(c, req)
		return
	}

	userID := CurrentUserID(c)
	res, err := h.chat.Send(c.Request.Context(), userID, req.SessionID, req.Message, nil)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, res)
	case errors.Is(err, service.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty message"})
	case errors.Is(err, service.ErrChatSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "chat session not found"})
	case errors.Is(err, service.ErrChatRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many messages, slow down"})
	case errors.Is(err, service.ErrChatUnavailable):
		// el fallback del bot viaja en la respuesta
		c.JSON(http.StatusBadGateway, gin.H{
			"error":        "chat unavailable",
			"session_id":   res.SessionID,
			"user_message": res.UserMessage,
			"bot_message":  res.BotMessage,
		})
	default:
		h.logger.Error("chat failed", zap.Error(err), zap.String("user_id", userID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not send message"})
	}
}

func (h *ChatHandler) stream(c *gin.Context, req chatRequest) {
	userID := CurrentUserID(c)
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	res, err := h.chat.Send(c.Request.Context(), userID, req.SessionID, req.Message, func(msg domain.ChatMessage) {
		if !msg.Streaming {
			return
		}
		c.SSEvent("delta", msg)
		c.Writer.Flush()
	})
	if err != nil {
		if !errors.Is(err, service.ErrChatUnavailable) {
			c.SSEvent("error", gin.H{"error": err.Error()})
			c.Writer.Flush()
			return
		}
		h.logger.Warn("chat stream fell back", zap.Error(err), zap.String("user_id", userID))
	}
	c.SSEvent("done", res)
	c.Writer.Flush()
}

// Transcript maneja GET /chat/:session_id.
func (h *ChatHandler) Transcript(c *gin.Context) {
	msgs, err := h.chat.Transcript(CurrentUserID(c), c.Param("session_id"))
	if err != nil {
		if errors.Is(err, service.ErrChatSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "chat session not found"})
			return
		}
		h.logger.Error("get transcript failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not get transcript"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": c.Param("session_id"), "messages": msgs})
}
