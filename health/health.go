// Package health 提供依赖组件（数据库、Redis、Kafka）的健康检查与聚合。
package health

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/optiongreeks/database"
	"github.com/wyfcoding/optiongreeks/redis"
)

const (
	StatusUp   = "UP"
	StatusDown = "DOWN"

	defaultCheckTimeout = 2 * time.Second
)

// Checker 定义健康检查函数原型。
type Checker func(ctx context.Context) error

// Report 聚合检查结果，任一依赖失败时整体为 DOWN。
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Up 整体是否健康。
func (r Report) Up() bool { return r.Status == StatusUp }

// Registry 登记具名检查项。
type Registry struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	timeout  time.Duration
}

// NewRegistry 创建检查项注册表，timeout 为单项检查超时。
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	return &Registry{checkers: make(map[string]Checker), timeout: timeout}
}

// Register 登记检查项，同名覆盖。
func (r *Registry) Register(name string, c Checker) {
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[name] = c
}

// Names 返回已登记的检查项名称，按字母序。
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.checkers))
	for n := range r.checkers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Check 并发执行全部检查项。
func (r *Registry) Check(ctx context.Context) Report {
	r.mu.RLock()
	checkers := make(map[string]Checker, len(r.checkers))
	for n, c := range r.checkers {
		checkers[n] = c
	}
	r.mu.RUnlock()

	report := Report{Status: StatusUp, Checks: make(map[string]string, len(checkers))}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for name, check := range checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, r.timeout)
			defer cancel()
			status := StatusUp
			if err := check(cctx); err != nil {
				status = StatusDown + ": " + err.Error()
			}
			mu.Lock()
			report.Checks[name] = status
			if status != StatusUp {
				report.Status = StatusDown
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return report
}

// DBChecker 返回数据库健康检查函数。
func DBChecker(db *database.DB) Checker {
	return func(ctx context.Context) error {
		if db == nil {
			return errors.New("database is nil")
		}
		return db.Ping(ctx)
	}
}

// RedisChecker 返回 Redis 健康检查函数。
func RedisChecker(client redis.Client) Checker {
	return func(ctx context.Context) error {
		if client == nil {
			return errors.New("redis client is nil")
		}
		return client.Ping(ctx).Err()
	}
}
