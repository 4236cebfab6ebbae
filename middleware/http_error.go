package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/optiongreeks/response"
)

// HTTPErrorHandler 返回一个 Gin 中间件，处理器通过 c.Error 登记错误且尚未写出响应时，
// 以最后一个错误统一输出错误响应。
func HTTPErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}

		if last := c.Errors.Last(); last != nil {
			response.Error(c, last.Err)
		}
	}
}
