package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/EasyTier/EasyLink/internal/core/metrics"
)

// requestLogger 按状态码选择日志级别
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		args := []any{
			"method", c.Request.Method,
			"path", routePath(c),
			"status", status,
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		switch {
		case status >= 500:
			logger.Error("http_request", args...)
		case status >= 400:
			logger.Warn("http_request", args...)
		default:
			logger.Debug("http_request", args...)
		}
	}
}

// requestMetrics 记录请求计数与耗时
func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		metrics.RecordHTTPRequest(c.Request.Method, routePath(c), c.Writer.Status(), time.Since(start))
	}
}

// routePath 优先使用路由模板，避免实例 ID 撑大标签基数
func routePath(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return "unmatched"
}
