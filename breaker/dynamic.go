package breaker

import (
	"sync/atomic"

	"github.com/wyfcoding/optiongreeks/config"
	"github.com/wyfcoding/optiongreeks/metrics"
)

// DynamicBreaker 配置热更新时整体替换内部熔断器，计数随之清零。
type DynamicBreaker struct {
	cur  atomic.Pointer[Breaker]
	base Settings
	m    *metrics.Metrics
}

// NewDynamicBreaker 在首次 Update 之前为直通。
func NewDynamicBreaker(name string, m *metrics.Metrics, failureRatio float64, minRequests uint32) *DynamicBreaker {
	return &DynamicBreaker{
		base: Settings{Name: name, FailureRatio: failureRatio, MinRequests: minRequests},
		m:    m,
	}
}

// Update 按新配置重建，Enabled 为 false 时变为直通。
func (d *DynamicBreaker) Update(cfg config.CircuitBreakerConfig) {
	if d == nil {
		return
	}
	if !cfg.Enabled {
		d.cur.Store(nil)
		return
	}
	st := d.base
	st.Config = cfg
	d.cur.Store(NewBreaker(st, d.m))
}

// Run 执行只返回错误的操作。
func (d *DynamicBreaker) Run(fn func() error) error {
	return d.load().Run(fn)
}

func (d *DynamicBreaker) load() *Breaker {
	if d == nil {
		return nil
	}
	return d.cur.Load()
}

// DynamicExecute 使用当前生效的熔断器执行 fn。
func DynamicExecute[T any](d *DynamicBreaker, fn func() (T, error)) (T, error) {
	return ExecuteTyped(d.load(), fn)
}
