package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/botdesk/internal/service/auth"
	"github.com/ashwinyue/botdesk/internal/service/conversation"
	"github.com/ashwinyue/botdesk/internal/service/embedder"
	"github.com/ashwinyue/botdesk/internal/service/extract"
	"github.com/ashwinyue/botdesk/internal/service/rag"
	"github.com/ashwinyue/botdesk/internal/service/types"
)

// SuccessResponse 成功响应
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Success bool     `json:"success"`
	Error   string   `json:"error"`
	Errors  []string `json:"errors,omitempty"`
}

// Success 成功响应 (200)
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: data})
}

// Created 创建成功响应 (201)
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, SuccessResponse{Success: true, Data: data})
}

// NoContent 无内容响应 (204)
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// BadRequest 400 错误响应
func BadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Success: false, Error: msg})
}

// Unauthorized 401 错误响应
func Unauthorized(c *gin.Context, msg string) {
	c.JSON(http.StatusUnauthorized, ErrorResponse{Success: false, Error: msg})
}

// Forbidden 403 错误响应
func Forbidden(c *gin.Context, msg string) {
	c.JSON(http.StatusForbidden, ErrorResponse{Success: false, Error: msg})
}

// NotFound 404 错误响应
func NotFound(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, ErrorResponse{Success: false, Error: msg})
}

// Conflict 409 错误响应
func Conflict(c *gin.Context, msg string) {
	c.JSON(http.StatusConflict, ErrorResponse{Success: false, Error: msg})
}

// InternalServerError 500 错误响应
func InternalServerError(c *gin.Context, msg string) {
	c.JSON(http.StatusInternalServerError, ErrorResponse{Success: false, Error: msg})
}

// BadGateway 502 错误响应，用于上游 AI 服务故障
func BadGateway(c *gin.Context, msg string) {
	c.JSON(http.StatusBadGateway, ErrorResponse{Success: false, Error: msg})
}

// Error 按错误类型映射 HTTP 状态码
func Error(c *gin.Context, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, types.ErrChatbotNotFound),
		errors.Is(err, conversation.ErrSessionNotFound):
		NotFound(c, err.Error())
	case errors.Is(err, types.ErrWidgetNotEnabled),
		errors.Is(err, types.ErrDomainNotAllowed):
		Forbidden(c, err.Error())
	case errors.Is(err, types.ErrInvalidAPIKey),
		errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken):
		Unauthorized(c, err.Error())
	case errors.Is(err, auth.ErrEmailTaken):
		Conflict(c, err.Error())
	case errors.Is(err, extract.ErrEmptyDocument):
		BadRequest(c, err.Error())
	case errors.Is(err, embedder.ErrEmbeddingService),
		errors.Is(err, rag.ErrCompletionService):
		BadGateway(c, err.Error())
	default:
		InternalServerError(c, err.Error())
	}
}
