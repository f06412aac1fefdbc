package handler

import (
	"github.com/ashwinyue/botdesk/internal/service"
)

// Handlers 处理器集合
type Handlers struct {
	Auth    *AuthHandler
	Chatbot *ChatbotHandler
	Chat    *ChatHandler
	Public  *PublicHandler
}

// NewHandlers 创建所有处理器
func NewHandlers(svc *service.Services) *Handlers {
	return &Handlers{
		Auth:    NewAuthHandler(svc),
		Chatbot: NewChatbotHandler(svc),
		Chat:    NewChatHandler(svc),
		Public:  NewPublicHandler(svc),
	}
}
