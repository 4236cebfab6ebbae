// Package breaker 基于 gobreaker 保护 Redis、数据库与 Kafka 发布，状态变化写入日志与 breaker_state 指标。
package breaker

import (
	"errors"

	"github.com/sony/gobreaker"

	"github.com/wyfcoding/optiongreeks/config"
	"github.com/wyfcoding/optiongreeks/logging"
	"github.com/wyfcoding/optiongreeks/metrics"
)

// ErrServiceUnavailable 熔断打开时返回。
var ErrServiceUnavailable = errors.New("service unavailable: circuit breaker is open")

const (
	defaultFailureRatio = 0.5
	defaultMinRequests  = 5
)

// Settings 熔断器参数。Ignore 返回 true 的错误照常返回给调用方，但不计为失败。
type Settings struct {
	Name         string
	Config       config.CircuitBreakerConfig
	FailureRatio float64
	MinRequests  uint32
	Ignore       func(error) bool
}

// Breaker 未启用时为直通，nil 同样直通。
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

func NewBreaker(st Settings, m *metrics.Metrics) *Breaker {
	if !st.Config.Enabled {
		return &Breaker{}
	}
	ratio := st.FailureRatio
	if ratio <= 0 {
		ratio = defaultFailureRatio
	}
	minReq := st.MinRequests
	if minReq == 0 {
		minReq = defaultMinRequests
	}

	m.SetBreakerState(st.Name, float64(gobreaker.StateClosed))
	gs := gobreaker.Settings{
		Name:        st.Name,
		MaxRequests: st.Config.MaxRequests,
		Interval:    st.Config.Interval,
		Timeout:     st.Config.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.Requests >= minReq && float64(c.TotalFailures)/float64(c.Requests) >= ratio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Default().Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			m.SetBreakerState(name, float64(to))
		},
	}
	if st.Ignore != nil {
		gs.IsSuccessful = func(err error) bool { return err == nil || st.Ignore(err) }
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(gs)}
}

// State 未启用时恒为 Closed。
func (b *Breaker) State() gobreaker.State {
	if b == nil || b.cb == nil {
		return gobreaker.StateClosed
	}
	return b.cb.State()
}

// Run 执行只返回错误的操作。
func (b *Breaker) Run(fn func() error) error {
	_, err := ExecuteTyped(b, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

// ExecuteTyped 在熔断保护下执行 fn，打开状态返回 ErrServiceUnavailable。
func ExecuteTyped[T any](b *Breaker, fn func() (T, error)) (T, error) {
	if b == nil || b.cb == nil {
		return fn()
	}
	var out T
	_, err := b.cb.Execute(func() (any, error) {
		v, err := fn()
		out = v
		return nil, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		var zero T
		return zero, ErrServiceUnavailable
	}
	return out, err
}
