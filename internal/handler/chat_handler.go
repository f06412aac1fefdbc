package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/botdesk/internal/middleware"
	"github.com/ashwinyue/botdesk/internal/service"
	"github.com/ashwinyue/botdesk/internal/service/rag"
)

// ChatHandler 对话处理器
type ChatHandler struct {
	svc *service.Services
}

// NewChatHandler 创建对话处理器
func NewChatHandler(svc *service.Services) *ChatHandler {
	return &ChatHandler{svc: svc}
}

// Query 向机器人提问
// session_id 为空时创建新会话并在响应中返回
func (h *ChatHandler) Query(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		Unauthorized(c, "Authentication required")
		return
	}

	var req struct {
		Query     string `json:"query" binding:"required"`
		SessionID string `json:"sessionId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid parameters: "+err.Error())
		return
	}

	result, err := h.svc.RAG.Query(c.Request.Context(), &rag.QueryRequest{
		UserID:    userID,
		ChatbotID: c.Param("id"),
		SessionID: req.SessionID,
		Message:   req.Query,
	})
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, result)
}

// ListSessions 列出机器人的会话
func (h *ChatHandler) ListSessions(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		Unauthorized(c, "Authentication required")
		return
	}

	// 先做租户校验再查会话
	if _, err := h.svc.Chatbot.Get(c.Request.Context(), userID, c.Param("id")); err != nil {
		Error(c, err)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	sessions, err := h.svc.Conversation.ListSessions(c.Request.Context(), c.Param("id"), (page-1)*pageSize, pageSize)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, sessions)
}

// GetMessages 获取会话的全部消息
func (h *ChatHandler) GetMessages(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		Unauthorized(c, "Authentication required")
		return
	}

	session, err := h.svc.Conversation.GetOwnedSession(c.Request.Context(), userID, c.Param("id"), c.Param("session_id"))
	if err != nil {
		Error(c, err)
		return
	}

	messages, err := h.svc.Conversation.Messages(c.Request.Context(), session.ID)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, messages)
}

// DeleteSession 删除会话及其消息
func (h *ChatHandler) DeleteSession(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		Unauthorized(c, "Authentication required")
		return
	}

	session, err := h.svc.Conversation.GetOwnedSession(c.Request.Context(), userID, c.Param("id"), c.Param("session_id"))
	if err != nil {
		Error(c, err)
		return
	}

	if err := h.svc.Conversation.DeleteSession(c.Request.Context(), session.ID); err != nil {
		Error(c, err)
		return
	}

	Success(c, gin.H{"message": "Session deleted successfully"})
}
