package limiter

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/wyfcoding/optiongreeks/config"
)

// DynamicLimiter 提供支持热更新的限流器封装。未配置限流器时全部放行。
type DynamicLimiter struct {
	value atomic.Value
}

type holder struct{ l Limiter }

// NewDynamicLimiter 创建动态限流器。
func NewDynamicLimiter(initial Limiter) *DynamicLimiter {
	d := &DynamicLimiter{}
	d.Update(initial)
	return d
}

// NewDynamicLimiterFromConfig 按限流配置创建动态限流器。
func NewDynamicLimiterFromConfig(cfg config.RateLimitConfig) *DynamicLimiter {
	d := NewDynamicLimiter(nil)
	d.UpdateConfig(cfg)
	return d
}

// Update 替换当前限流器实例，nil 表示关闭限流。
func (d *DynamicLimiter) Update(l Limiter) {
	if d == nil {
		return
	}
	d.value.Store(holder{l: l})
}

// UpdateConfig 按配置重建本地令牌桶限流器，Enabled 为 false 或速率非正时关闭限流。
func (d *DynamicLimiter) UpdateConfig(cfg config.RateLimitConfig) {
	if d == nil {
		return
	}
	if !cfg.Enabled || cfg.Rate <= 0 {
		d.Update(nil)
		return
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.Rate
	}
	d.Update(NewLocalLimiter(rate.Limit(cfg.Rate), burst))
}

// Allow 实现 Limiter 接口。
func (d *DynamicLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l := d.load()
	if l == nil {
		return true, nil
	}
	return l.Allow(ctx, key)
}

func (d *DynamicLimiter) load() Limiter {
	if d == nil {
		return nil
	}
	v, ok := d.value.Load().(holder)
	if !ok {
		return nil
	}
	return v.l
}
