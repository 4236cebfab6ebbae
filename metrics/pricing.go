package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PricingObserver 把定价引擎的内部事件转换为 Prometheus 指标，实现 pricing.Observer。
type PricingObserver struct {
	m *Metrics
}

// NewPricingObserver 创建基于 m 的引擎观察者，m 为 nil 时所有回调为空操作。
func (m *Metrics) NewPricingObserver() *PricingObserver {
	return &PricingObserver{m: m}
}

func (o *PricingObserver) NonFinite(_ string, greek string) {
	if o == nil || o.m == nil {
		return
	}
	o.m.NonFiniteTotal.WithLabelValues(greek).Inc()
}

func (o *PricingObserver) IVFailure(_ string, method string) {
	if o == nil || o.m == nil {
		return
	}
	o.m.IVFailuresTotal.WithLabelValues(method).Inc()
}

func (o *PricingObserver) GreeksComputed(style string, elapsed time.Duration) {
	if o == nil || o.m == nil {
		return
	}
	o.m.GreeksTotal.WithLabelValues(style).Inc()
	o.m.GreeksDuration.WithLabelValues(style).Observe(elapsed.Seconds())
}

// BindPricing 注册按需采集的注册表规模与估值日变更次数指标，只应调用一次。
func (m *Metrics) BindPricing(engines func() int, clockChanges func() int64) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "pricing_engines_cached",
		Help: "Number of pricing engines held by the contract registry",
	}, func() float64 { return float64(engines()) }))
	m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "pricing_clock_changes_total",
		Help: "Number of effective valuation date changes",
	}, func() float64 { return float64(clockChanges()) }))
}

// CacheResult 记录一次缓存查询，result 取 hit、miss 或 error。
func (m *Metrics) CacheResult(level, result string) {
	if m == nil {
		return
	}
	m.CacheRequests.WithLabelValues(level, result).Inc()
}

// RedisCommand 记录一条 Redis 命令或一次 pipeline，status 取 ok、nil 或 error。
func (m *Metrics) RedisCommand(command, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RedisCommands.WithLabelValues(command, status).Inc()
	m.RedisLatency.WithLabelValues(command).Observe(elapsed.Seconds())
}

// Published 记录一次报告发布，status 取 success 或 error。
func (m *Metrics) Published(topic, status string) {
	if m == nil {
		return
	}
	m.ReportsPublished.WithLabelValues(topic, status).Inc()
}

// Consumed 记录一条已处理的消息，status 取 success 或 failed，produced 为零时不记录延迟。
func (m *Metrics) Consumed(topic, status string, produced time.Time) {
	if m == nil {
		return
	}
	m.FillsConsumed.WithLabelValues(topic, status).Inc()
	if !produced.IsZero() {
		m.ConsumeLag.WithLabelValues(topic).Observe(time.Since(produced).Seconds())
	}
}

// SetBreakerState 记录熔断器状态，取值同 gobreaker.State。
func (m *Metrics) SetBreakerState(name string, state float64) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(name).Set(state)
}
