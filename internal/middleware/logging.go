// Package middleware 提供 gin 中间件
package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
)

// LoggingMiddleware 日志中间件
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		target := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			target = target + "?" + raw
		}

		c.Next()

		log.Printf("%s %s -> %d (%v)",
			c.Request.Method, target, c.Writer.Status(), time.Since(start))
	}
}
