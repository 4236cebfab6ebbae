package server

import (
	"context"
	"errors"
	"sync"
)

// Server 接口定义了一个通用的服务器行为契约。
// 任何实现了 Start 和 Stop 方法的类型都可以被视为一个 Server，
// 从而实现服务器生命周期的统一管理。
type Server interface {
	// Start 启动服务器，阻塞直到上下文被取消或发生不可恢复的错误。
	Start(ctx context.Context) error
	// Stop 优雅地停止服务器，等待处理中的请求完成并释放资源。
	Stop(ctx context.Context) error
}

// Runner 把阻塞到 ctx 结束的后台循环（快照记录器、成交消费者）适配为 Server。
type Runner struct {
	name   string
	run    func(ctx context.Context) error
	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewRunner 创建后台循环适配器。
func NewRunner(name string, run func(ctx context.Context) error) *Runner {
	return &Runner{name: name, run: run}
}

// Name 返回循环名称。
func (r *Runner) Name() string { return r.name }

// Start 运行循环，因 Stop 或上游取消而退出时返回 nil。
func (r *Runner) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	defer cancel()

	err := r.run(ctx)
	if errors.Is(err, context.Canceled) || (err != nil && ctx.Err() != nil) {
		return nil
	}
	return err
}

// Stop 取消循环的上下文。
func (r *Runner) Stop(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
	return nil
}
