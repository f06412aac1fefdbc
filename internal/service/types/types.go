// Package types 定义跨服务共享的类型与领域错误
package types

import "errors"

// 领域错误
// Handler 层据此映射 HTTP 状态码，错误文案随响应返回给调用方
var (
	// ErrChatbotNotFound 聊天机器人不存在或不属于调用方
	ErrChatbotNotFound = errors.New("chatbot not found")
	// ErrWidgetNotEnabled 聊天机器人未开启 widget
	ErrWidgetNotEnabled = errors.New("widget not enabled for this chatbot")
	// ErrInvalidAPIKey widget API key 缺失或不匹配
	ErrInvalidAPIKey = errors.New("invalid API key")
	// ErrDomainNotAllowed 请求来源域名不在 widget 白名单内
	ErrDomainNotAllowed = errors.New("origin domain not allowed")
)

// RetrievedChunk 检索命中的上下文片段
type RetrievedChunk struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}
