package pricing

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/wyfcoding/optiongreeks/datetime"
)

// Clock 是进程共享的"当前计算日"估值上下文。
// 写入前先比较，只有日期真正变化时才更新并计数；Scope 在持有作用域锁期间切换日期，
// 并在返回的 restore 被调用时恢复原日期，多合约并发评估时改变日期的操作通过它串行化。
// Clock 的锁与 Registry 的创建锁相互独立。
type Clock struct {
	scope   sync.Mutex
	mu      sync.RWMutex
	date    time.Time
	changes atomic.Int64
}

// NewClock 以给定日期创建估值时钟。
func NewClock(d time.Time) *Clock {
	return &Clock{date: datetime.DateOnly(d)}
}

// Date 返回当前计算日。
func (c *Clock) Date() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.date
}

// Set 日期相同时直接返回 false。
func (c *Clock) Set(d time.Time) bool {
	d = datetime.DateOnly(d)
	c.mu.RLock()
	same := c.date.Equal(d)
	c.mu.RUnlock()
	if same {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.date.Equal(d) {
		return false
	}
	c.date = d
	c.changes.Add(1)
	return true
}

// Scope 独占估值上下文并切换到 d，用法:
//
//	restore := clock.Scope(d)
//	defer restore()
func (c *Clock) Scope(d time.Time) (restore func()) {
	c.scope.Lock()
	prev := c.Date()
	c.Set(d)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.Set(prev)
			c.scope.Unlock()
		})
	}
}

// Changes 返回日期实际发生变更的次数。
func (c *Clock) Changes() int64 {
	return c.changes.Load()
}
