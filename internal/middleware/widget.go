package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/botdesk/internal/model"
)

// DomainLister 查询聊天机器人域名白名单
type DomainLister interface {
	ListDomains(chatbotID string) ([]*model.ChatbotDomain, error)
}

// WidgetCORS 公开挂件接口的跨域中间件
// 根据机器人配置的域名白名单校验 Origin，"*" 表示允许所有来源。
// 没有 Origin 头的请求（如 curl、服务端调用）不做域名校验。
func WidgetCORS(domains DomainLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}

		chatbotID := c.Param("id")
		allowed, err := domains.ListDomains(chatbotID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error":   "failed to check allowed domains",
			})
			c.Abort()
			return
		}

		if !originAllowed(origin, allowed) {
			c.JSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "origin domain not allowed",
			})
			c.Abort()
			return
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, X-API-Key")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func originAllowed(origin string, domains []*model.ChatbotDomain) bool {
	host := origin
	if u, err := url.Parse(origin); err == nil && u.Host != "" {
		host = u.Hostname()
	}
	for _, d := range domains {
		if d.Domain == "*" {
			return true
		}
		if strings.EqualFold(d.Domain, host) {
			return true
		}
	}
	return false
}
