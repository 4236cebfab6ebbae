package middleware

import (
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/optiongreeks/metrics"
)

// unmatchedRoute 没有命中路由的请求共用的 path 标签.
const unmatchedRoute = "unmatched"

// Metrics 采集请求数、耗时与在途请求。path 标签取路由模板，skipPaths 中的路径不计。
// m 为 nil 时直通。
func Metrics(m *metrics.Metrics, skipPaths ...string) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if slices.Contains(skipPaths, c.Request.URL.Path) {
			c.Next()
			return
		}
		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		method := c.Request.Method
		inflight := m.HTTPInFlight.WithLabelValues(method, route)
		inflight.Inc()
		defer inflight.Dec()
		begin := time.Now()

		c.Next()

		m.HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(begin).Seconds())
		m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
