package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/optiongreeks/contextx"
	"github.com/wyfcoding/optiongreeks/logging"
	"github.com/wyfcoding/optiongreeks/tracing"
)

// Logger 访问日志中间件。4xx 记为 Warn，5xx 记为 Error。
func Logger(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		cost := time.Since(start)
		ctx := c.Request.Context()
		status := c.Writer.Status()

		args := []any{
			"trace_id", tracing.GetTraceID(ctx),
			"request_id", contextx.RequestID(ctx),
			"status", status,
			"method", c.Request.Method,
			"path", path,
			"query", query,
			"ip", contextx.ClientIP(ctx),
			"cost", cost,
			"user_agent", c.Request.UserAgent(),
		}
		if len(c.Errors) > 0 {
			args = append(args, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			logger.ErrorContext(ctx, "HTTP Request", args...)
		case status >= 400:
			logger.WarnContext(ctx, "HTTP Request", args...)
		default:
			logger.InfoContext(ctx, "HTTP Request", args...)
		}
	}
}
