// Package limiter 提供了 HTTP 入口使用的令牌桶限流器。
package limiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate" // 导入基于令牌桶算法的限流库。
)

// Limiter 接口定义了限流器的通用行为。
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error) // 检查是否允许请求通过。
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalLimiter 是一个按 key 分桶的本地令牌桶限流器。
// 每个 key（通常是客户端 IP）拥有独立的令牌桶，空闲超过 idleTTL 的桶在下次访问时被回收。
type LocalLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	r       rate.Limit
	b       int
	idleTTL time.Duration
	swept   time.Time
	now     func() time.Time
}

const defaultIdleTTL = 10 * time.Minute

// NewLocalLimiter 创建并返回一个新的 LocalLimiter 实例。
// r: 每秒生成的令牌数，代表允许的平均请求速率。
// b: 令牌桶的容量，代表允许的瞬时突发请求数。
func NewLocalLimiter(r rate.Limit, b int) *LocalLimiter {
	return &LocalLimiter{
		buckets: make(map[string]*bucket),
		r:       r,
		b:       b,
		idleTTL: defaultIdleTTL,
		now:     time.Now,
	}
}

// Allow 从 key 对应的令牌桶中取一个令牌。
func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	bk, ok := l.buckets[key]
	if !ok {
		bk = &bucket{limiter: rate.NewLimiter(l.r, l.b)}
		l.buckets[key] = bk
	}
	bk.lastSeen = now
	return bk.limiter.AllowN(now, 1), nil
}

// Len 返回当前存活的令牌桶数量。
func (l *LocalLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *LocalLimiter) sweep(now time.Time) {
	if now.Sub(l.swept) < l.idleTTL {
		return
	}
	l.swept = now
	for k, bk := range l.buckets {
		if now.Sub(bk.lastSeen) > l.idleTTL {
			delete(l.buckets, k)
		}
	}
}
