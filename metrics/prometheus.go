// Package metrics 封装 Prometheus 注册表，提供 HTTP、定价引擎、缓存与消息发布的标准指标。
package metrics

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 封装了基于 Prometheus 的指标采集注册表及预定义的标准监控指标。
type Metrics struct {
	registry *prometheus.Registry // 内部独立的 Prometheus 注册中心

	HTTPRequestsTotal   *prometheus.CounterVec   // HTTP 请求总量 (维度: method, path, status)
	HTTPRequestDuration *prometheus.HistogramVec // HTTP 请求耗时分布
	HTTPInFlight        *prometheus.GaugeVec     // 正在处理的 HTTP 请求数
	BuildInfo           *prometheus.GaugeVec

	GreeksTotal      *prometheus.CounterVec   // 维度: style
	GreeksDuration   *prometheus.HistogramVec // 维度: style
	IVFailuresTotal  *prometheus.CounterVec   // 维度: method
	NonFiniteTotal   *prometheus.CounterVec   // 维度: greek
	CacheRequests    *prometheus.CounterVec   // 维度: level, result
	RedisCommands    *prometheus.CounterVec   // 维度: command, status
	RedisLatency     *prometheus.HistogramVec // 维度: command
	ReportsPublished *prometheus.CounterVec   // 维度: topic, status
	FillsConsumed    *prometheus.CounterVec   // 维度: topic, status
	ConsumeLag       *prometheus.HistogramVec // 维度: topic
	BreakerState     *prometheus.GaugeVec     // 维度: name
}

// NewMetrics 初始化并返回一个新的指标采集器。
// 它会自动注册 Go 运行时指标和进程指标。
func NewMetrics(serviceName string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: reg}

	m.HTTPRequestsTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "http_server_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	m.HTTPRequestDuration = m.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_server_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	m.HTTPInFlight = m.NewGaugeVec(prometheus.GaugeOpts{
		Name: "http_server_requests_in_flight",
		Help: "Number of HTTP requests currently being served",
	}, []string{"method", "path"})

	m.BuildInfo = m.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build information for the service",
	}, []string{"service", "version"})

	m.GreeksTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "pricing_greeks_total",
		Help: "Total number of full Greeks set computations",
	}, []string{"style"})

	m.GreeksDuration = m.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pricing_greeks_duration_seconds",
		Help:    "Latency of a full Greeks set computation",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
	}, []string{"style"})

	m.IVFailuresTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "pricing_iv_failures_total",
		Help: "Implied volatility solves that returned no result",
	}, []string{"method"})

	m.NonFiniteTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "pricing_fd_nonfinite_total",
		Help: "Greek evaluations that produced NaN or Inf and were replaced by 0",
	}, []string{"greek"})

	m.CacheRequests = m.NewCounterVec(prometheus.CounterOpts{
		Name: "greeks_cache_requests_total",
		Help: "Greeks memo lookups by cache level and result",
	}, []string{"level", "result"})

	m.RedisCommands = m.NewCounterVec(prometheus.CounterOpts{
		Name: "redis_commands_total",
		Help: "Redis commands by name and outcome",
	}, []string{"command", "status"})

	m.RedisLatency = m.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "redis_command_duration_seconds",
		Help:    "Redis command latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	}, []string{"command"})

	m.ReportsPublished = m.NewCounterVec(prometheus.CounterOpts{
		Name: "explain_reports_published_total",
		Help: "Attribution reports published to the message queue",
	}, []string{"topic", "status"})

	m.FillsConsumed = m.NewCounterVec(prometheus.CounterOpts{
		Name: "fills_consumed_total",
		Help: "Fill messages consumed from the message queue",
	}, []string{"topic", "status"})

	m.ConsumeLag = m.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fills_consume_lag_seconds",
		Help:    "Delay between fill message production and handling",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"topic"})

	m.BreakerState = m.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Circuit breaker state (0: Closed, 1: Half-Open, 2: Open)",
	}, []string{"name"})

	slog.Info("unified metrics registry initialized", "service", serviceName)
	return m
}

// NewCounterVec 创建并注册一个新的计数器指标。
func (m *Metrics) NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(opts, labelNames)
	m.registry.MustRegister(cv)
	return cv
}

// NewGaugeVec 创建并注册一个新的仪表盘指标。
func (m *Metrics) NewGaugeVec(opts prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec {
	gv := prometheus.NewGaugeVec(opts, labelNames)
	m.registry.MustRegister(gv)
	return gv
}

// NewHistogramVec 创建并注册一个新的直方图指标。
func (m *Metrics) NewHistogramVec(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec {
	hv := prometheus.NewHistogramVec(opts, labelNames)
	m.registry.MustRegister(hv)
	return hv
}

// Registry 返回底层注册表，供测试读取指标值。
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetBuildInfo 记录服务名与版本。
func (m *Metrics) SetBuildInfo(serviceName, version string) {
	if m == nil {
		return
	}
	if serviceName == "" {
		serviceName = "unknown"
	}
	if version == "" {
		version = "unknown"
	}
	m.BuildInfo.WithLabelValues(serviceName, version).Set(1)
}

// Handler 返回用于暴露指标的 HTTP 处理器。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Register 注册外部包自带的采集器，已注册的采集器被忽略。
func (m *Metrics) Register(cs ...prometheus.Collector) {
	if m == nil {
		return
	}
	for _, c := range cs {
		if err := m.registry.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				slog.Error("failed to register collector", "error", err)
			}
		}
	}
}
