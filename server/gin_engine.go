package server

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/optiongreeks/limiter"
	"github.com/wyfcoding/optiongreeks/logging"
	"github.com/wyfcoding/optiongreeks/metrics"
	"github.com/wyfcoding/optiongreeks/middleware"
)

const defaultMaxBodyBytes = 4 << 20

// EngineOptions 汇总 HTTP 入口的治理组件，零值字段对应的中间件不启用。
type EngineOptions struct {
	ServiceName    string
	Logger         *logging.Logger
	Metrics        *metrics.Metrics
	MetricsPath    string
	Limiter        limiter.Limiter
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

// NewDefaultGinEngine 创建一个新的 Gin 引擎实例。
// 由调用方负责决定中间件顺序与集合，以满足不同服务的治理策略。
func NewDefaultGinEngine(middlewares ...gin.HandlerFunc) *gin.Engine {
	engine := gin.New()
	engine.Use(middlewares...)
	return engine
}

// NewEngine 按固定顺序装配中间件并挂载业务路由：
// recovery, request id, tracing, trace id header, access log, metrics, rate limit, body limit, timeout, error handler。
func NewEngine(h *Handler, opts EngineOptions) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.MaxBodyBytes == 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}

	quiet := []string{healthPath}
	if opts.MetricsPath != "" {
		quiet = append(quiet, opts.MetricsPath)
	}

	chain := []gin.HandlerFunc{
		middleware.Recovery(opts.Logger),
		middleware.RequestID(),
	}
	if opts.ServiceName != "" {
		chain = append(chain, middleware.Tracing(opts.ServiceName, quiet...), middleware.TraceIDHeader())
	}
	chain = append(chain,
		middleware.Logger(opts.Logger),
		middleware.Metrics(opts.Metrics, quiet...),
	)
	if opts.Limiter != nil {
		chain = append(chain, middleware.RateLimitMiddleware(opts.Limiter))
	}
	chain = append(chain,
		middleware.MaxBodyBytes(opts.MaxBodyBytes),
		middleware.Timeout(opts.RequestTimeout),
		middleware.HTTPErrorHandler(),
	)

	engine := NewDefaultGinEngine(chain...)
	h.Register(engine)
	if opts.Metrics != nil && opts.MetricsPath != "" {
		engine.GET(opts.MetricsPath, gin.WrapH(opts.Metrics.Handler()))
	}
	return engine
}
