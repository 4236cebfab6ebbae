package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/optiongreeks/response"
)

// Timeout 给请求上下文加截止时间；处理器超时且未写响应时返回 504。d 非正时不生效。
// 定价引擎按 ctx 中止长时间的树计算和 IV 迭代。
func Timeout(d time.Duration) gin.HandlerFunc {
	if d <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if !c.Writer.Written() && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			response.ErrorWithStatus(c, http.StatusGatewayTimeout, "request timeout", d.String())
			c.Abort()
		}
	}
}
