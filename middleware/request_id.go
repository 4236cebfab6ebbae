// Package middleware 是 HTTP 入口的 Gin 中间件：异常恢复、请求 ID、链路追踪、访问日志、指标、限流、请求体与超时限制。
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/wyfcoding/optiongreeks/contextx"
)

const HeaderXRequestID = "X-Request-ID"

// RequestID 沿用上游的 X-Request-ID，没有时生成 UUID；请求 ID 与客户端 IP 写入请求上下文并回写响应头。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderXRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		ctx := contextx.WithClientIP(contextx.WithRequestID(c.Request.Context(), id), c.ClientIP())
		c.Request = c.Request.WithContext(ctx)
		c.Header(HeaderXRequestID, id)
		c.Next()
	}
}
