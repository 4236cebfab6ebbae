package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/optiongreeks/contextx"
	"github.com/wyfcoding/optiongreeks/logging"
	"github.com/wyfcoding/optiongreeks/response"
	"github.com/wyfcoding/optiongreeks/xerrors"
)

// Recovery 捕获处理器 panic，记录堆栈后返回 500，进程继续服务。
func Recovery(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			ctx := c.Request.Context()
			logger.ErrorContext(ctx, "panic recovered",
				"panic", r,
				"request_id", contextx.RequestID(ctx),
				"route", c.FullPath(),
				"query", c.Request.URL.RawQuery,
				"stack", string(debug.Stack()),
			)
			response.Error(c, xerrors.Internal("internal server error", fmt.Errorf("panic: %v", r)))
			c.Abort()
		}()
		c.Next()
	}
}
