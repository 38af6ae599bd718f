// Package router 提供路由配置
package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yuunagi/deskmate/internal/handler"
	"github.com/yuunagi/deskmate/internal/middleware"
)

// SetupRouter 设置路由
func SetupRouter(h *handler.Handlers) *gin.Engine {
	r := gin.New()

	// 中间件
	r.Use(middleware.RecoveryMiddleware())
	r.Use(middleware.LoggingMiddleware())
	r.Use(middleware.CORSMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// 会话
	r.POST("/generate", h.Chat.Generate)
	r.GET("/get", h.Chat.GetChat)
	r.POST("/save", h.Chat.SaveChat)
	r.GET("/alive", h.Chat.Alive)
	r.GET("/archive-all", h.Chat.ArchiveAll)
	r.DELETE("/chat", h.Chat.DeleteChat)

	// 配置
	r.POST("/configure", h.System.Configure)

	return r
}
