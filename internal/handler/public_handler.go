package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/botdesk/internal/service"
	"github.com/ashwinyue/botdesk/internal/service/rag"
)

// PublicHandler 公开 widget 处理器，无需登录
type PublicHandler struct {
	svc *service.Services
}

// NewPublicHandler 创建公开处理器
func NewPublicHandler(svc *service.Services) *PublicHandler {
	return &PublicHandler{svc: svc}
}

// Query 公开 widget 问答
// API key 从 X-API-Key 头读取，兼容请求体中的 api_key 字段
func (h *PublicHandler) Query(c *gin.Context) {
	var req struct {
		Query  string `json:"query" binding:"required"`
		APIKey string `json:"apiKey"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid parameters: "+err.Error())
		return
	}

	apiKey := c.GetHeader("X-API-Key")
	if apiKey == "" {
		apiKey = req.APIKey
	}

	result, err := h.svc.RAG.PublicQuery(c.Request.Context(), &rag.PublicQueryRequest{
		ChatbotID: c.Param("id"),
		APIKey:    apiKey,
		Message:   req.Query,
	})
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, result)
}
