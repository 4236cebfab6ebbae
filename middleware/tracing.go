package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/wyfcoding/optiongreeks/tracing"
)

// HeaderXTraceID 响应头，便于客户端按 trace id 检索链路。
const HeaderXTraceID = "X-Trace-ID"

// Tracing 为请求开启服务端 Span（继承上游 W3C traceparent），并回写 X-Trace-ID。
// skipPaths 中的路径（探活、指标抓取）不产生 Span。
func Tracing(serviceName string, skipPaths ...string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName, otelgin.WithFilter(func(r *http.Request) bool {
		return !slices.Contains(skipPaths, r.URL.Path)
	}))
}

// TraceIDHeader 需注册在 Tracing 之后。
func TraceIDHeader() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := tracing.GetTraceID(c.Request.Context()); id != "" {
			c.Header(HeaderXTraceID, id)
		}
		c.Next()
	}
}
