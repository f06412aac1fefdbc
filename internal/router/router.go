package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/botdesk/internal/handler"
	"github.com/ashwinyue/botdesk/internal/middleware"
	"github.com/ashwinyue/botdesk/internal/repository"
	"github.com/ashwinyue/botdesk/internal/service"
)

// SetupRouter 设置路由
func SetupRouter(h *handler.Handlers, svc *service.Services, repos *repository.Repositories) *gin.Engine {
	r := gin.New()

	r.Use(middleware.RecoveryMiddleware())
	r.Use(middleware.LoggingMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	{
		// 认证
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", h.Auth.Register)
			authGroup.POST("/login", h.Auth.Login)
			authGroup.GET("/me", middleware.RequireAuth(svc.Auth), h.Auth.Me)
		}

		// 机器人管理，全部需要登录
		bots := v1.Group("/chatbots", middleware.RequireAuth(svc.Auth))
		{
			bots.POST("", h.Chatbot.Create)
			bots.GET("", h.Chatbot.List)
			bots.GET("/:id", h.Chatbot.Get)
			bots.PUT("/:id", h.Chatbot.Update)
			bots.DELETE("/:id", h.Chatbot.Delete)

			bots.PUT("/:id/widget", h.Chatbot.ToggleWidget)
			bots.POST("/:id/domains", h.Chatbot.AddDomain)
			bots.GET("/:id/domains", h.Chatbot.ListDomains)
			bots.DELETE("/:id/domains/:domain_id", h.Chatbot.DeleteDomain)

			bots.POST("/:id/document", h.Chatbot.UploadDocument)
			bots.PUT("/:id/document", h.Chatbot.UploadDocument)

			bots.POST("/:id/query", h.Chat.Query)
			bots.GET("/:id/sessions", h.Chat.ListSessions)
			bots.GET("/:id/sessions/:session_id/messages", h.Chat.GetMessages)
			bots.DELETE("/:id/sessions/:session_id", h.Chat.DeleteSession)
		}

		// 公开 widget 接口，按域名白名单做跨域校验
		public := v1.Group("/public")
		{
			public.POST("/chatbots/:id/query", middleware.WidgetCORS(repos.Chatbot), h.Public.Query)
			public.OPTIONS("/chatbots/:id/query", middleware.WidgetCORS(repos.Chatbot))
		}
	}

	return r
}
