package handler

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mfolio/internal/middleware"
	"github.com/xxxsen/mfolio/internal/pkg/errcode"
	"github.com/xxxsen/mfolio/internal/pkg/response"
	"github.com/xxxsen/mfolio/internal/service"
)

type chatter interface {
	Chat(ctx context.Context, sessionKey, message string) (*service.ChatReply, error)
	History(ctx context.Context, sessionKey string, limit int) ([]service.HistoryMessage, error)
	RenameSession(ctx context.Context, sessionKey, title string) error
}

type ChatHandler struct {
	chat chatter
}

func NewChatHandler(chat chatter) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type chatRequest struct {
	SessionKey string `json:"session_key"`
	Message    string `json:"message"`
}

type chatResponse struct {
	SessionID      string                  `json:"session_id"`
	UserMessageID  string                  `json:"user_message_id"`
	MessageID      string                  `json:"message_id"`
	Reply          string                  `json:"reply"`
	RelatedProject *service.RelatedProject `json:"related_project"`
}

type renameRequest struct {
	SessionKey string `json:"session_key"`
	Title      string `json:"title"`
}

func sessionKeyOf(c *gin.Context, bodyKey string) string {
	if key := strings.TrimSpace(bodyKey); key != "" {
		return key
	}
	if key := strings.TrimSpace(c.Query("session_key")); key != "" {
		return key
	}
	return strings.TrimSpace(c.GetHeader(middleware.SessionKeyHeader))
}

func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	key := sessionKeyOf(c, req.SessionKey)
	if key == "" {
		response.Error(c, errcode.ErrInvalid, "missing session key")
		return
	}
	reply, err := h.chat.Chat(c.Request.Context(), key, req.Message)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, chatResponse{
		SessionID:      reply.SessionID,
		UserMessageID:  reply.UserMessageID,
		MessageID:      reply.AssistantMessageID,
		Reply:          reply.AssistantText,
		RelatedProject: reply.RelatedProject,
	})
}

func (h *ChatHandler) History(c *gin.Context) {
	key := sessionKeyOf(c, "")
	if key == "" {
		response.Error(c, errcode.ErrInvalid, "missing session key")
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, errcode.ErrInvalid, "invalid limit")
			return
		}
		limit = v
	}
	items, err := h.chat.History(c.Request.Context(), key, limit)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"items": items})
}

func (h *ChatHandler) Rename(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	key := sessionKeyOf(c, req.SessionKey)
	if key == "" {
		response.Error(c, errcode.ErrInvalid, "missing session key")
		return
	}
	if err := h.chat.RenameSession(c.Request.Context(), key, req.Title); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}
