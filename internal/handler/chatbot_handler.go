package handler

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/botdesk/internal/middleware"
	"github.com/ashwinyue/botdesk/internal/service"
	"github.com/ashwinyue/botdesk/internal/service/chatbot"
	"github.com/ashwinyue/botdesk/internal/service/rag"
)

// ChatbotHandler 聊天机器人处理器
type ChatbotHandler struct {
	svc *service.Services
}

// NewChatbotHandler 创建聊天机器人处理器
func NewChatbotHandler(svc *service.Services) *ChatbotHandler {
	return &ChatbotHandler{svc: svc}
}

// Create 创建机器人
func (h *ChatbotHandler) Create(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		Unauthorized(c, "Authentication required")
		return
	}

	var req chatbot.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid parameters: "+err.Error())
		return
	}

	bot, err := h.svc.Chatbot.Create(c.Request.Context(), userID, &req)
	if err != nil {
		Error(c, err)
		return
	}

	Created(c, bot)
}

// List 列出当前用户的机器人
func (h *ChatbotHandler) List(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		Unauthorized(c, "Authentication required")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	bots, err := h.svc.Chatbot.List(c.Request.Context(), userID, &chatbot.ListRequest{
		Page: page,
		Size: size,
	})
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, bots)
}

// Get 获取机器人详情
func (h *ChatbotHandler) Get(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		Unauthorized(c, "Authentication required")
		return
	}

	bot, err := h.svc.Chatbot.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, bot)
}

// Update 更新机器人
func (h *ChatbotHandler) Update(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		Unauthorized(c, "Authentication required")
		return
	}

	var req chatbot.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid parameters: "+err.Error())
		return
	}

	bot, err := h.svc.Chatbot.Update(c.Request.Context(), userID, c.Param("id"), &req)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, bot)
}

// Delete 删除机器人及其全部数据
func (h *ChatbotHandler) Delete(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		Unauthorized(c, "Authentication required")
		return
	}

	if err := h.svc.Chatbot.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		Error(c, err)
		return
	}

	Success(c, gin.H{"message": "Chatbot deleted successfully"})
}

// ToggleWidget 开关公开 widget
func (h *ChatbotHandler) ToggleWidget(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		Unauthorized(c, "Authentication required")
		return
	}

	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid parameters: enabled is required")
		return
	}

	settings, err := h.svc.Chatbot.ToggleWidget(c.Request.Context(), userID, c.Param("id"), *req.Enabled)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, settings)
}

// AddDomain 添加域名白名单
func (h *ChatbotHandler) AddDomain(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		Unauthorized(c, "Authentication required")
		return
	}

	var req chatbot.AddDomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid parameters: "+err.Error())
		return
	}

	domain, err := h.svc.Chatbot.AddDomain(c.Request.Context(), userID, c.Param("id"), &req)
	if err != nil {
		Error(c, err)
		return
	}

	Created(c, domain)
}

// ListDomains 列出域名白名单
func (h *ChatbotHandler) ListDomains(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		Unauthorized(c, "Authentication required")
		return
	}

	domains, err := h.svc.Chatbot.ListDomains(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, domains)
}

// DeleteDomain 移除域名白名单
func (h *ChatbotHandler) DeleteDomain(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		Unauthorized(c, "Authentication required")
		return
	}

	if err := h.svc.Chatbot.DeleteDomain(c.Request.Context(), userID, c.Param("id"), c.Param("domain_id")); err != nil {
		Error(c, err)
		return
	}

	Success(c, gin.H{"message": "Domain removed successfully"})
}

// UploadDocument 上传 PDF 文档并建立索引
// PUT 方法为替换模式：清空机器人现有知识库后重建
func (h *ChatbotHandler) UploadDocument(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		Unauthorized(c, "Authentication required")
		return
	}

	fileHeader, err := c.FormFile("document")
	if err != nil {
		BadRequest(c, "document is required: "+err.Error())
		return
	}

	maxSize := h.svc.Config.Upload.MaxSizeBytes
	if fileHeader.Size > maxSize {
		BadRequest(c, fmt.Sprintf("file exceeds maximum size of %d bytes", maxSize))
		return
	}
	if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".pdf") {
		BadRequest(c, "only PDF files are supported")
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		Error(c, err)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxSize+1))
	if err != nil {
		Error(c, err)
		return
	}
	if int64(len(data)) > maxSize {
		BadRequest(c, fmt.Sprintf("file exceeds maximum size of %d bytes", maxSize))
		return
	}

	replace := c.Request.Method == http.MethodPut

	result, err := h.svc.RAG.Ingest(c.Request.Context(), &rag.IngestRequest{
		UserID:    userID,
		ChatbotID: c.Param("id"),
		Filename:  fileHeader.Filename,
		Data:      data,
		Replace:   replace,
	})
	if err != nil {
		Error(c, err)
		return
	}

	Created(c, result)
}
