package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wyfcoding/optiongreeks/logging"
)

// Hook 组件的启停回调，OnStart 与 OnStop 均可为 nil。
type Hook struct {
	Name    string
	OnStart func(ctx context.Context) error
	OnStop  func(ctx context.Context) error
}

// lifecycle 按注册顺序启动钩子；启动成功的钩子进入 running 栈，关闭时出栈逆序停止。
type lifecycle struct {
	mu      sync.Mutex
	logger  *logging.Logger
	pending []Hook
	running []Hook
}

func newLifecycle(logger *logging.Logger, hooks []Hook) *lifecycle {
	return &lifecycle{logger: logger, pending: hooks}
}

func (l *lifecycle) start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for len(l.pending) > 0 {
		h := l.pending[0]
		if h.OnStart != nil {
			if err := h.OnStart(ctx); err != nil {
				return fmt.Errorf("hook %s: %w", h.Name, err)
			}
			l.logger.Info("hook started", "hook", h.Name)
		}
		l.running = append(l.running, h)
		l.pending = l.pending[1:]
	}
	return nil
}

// stop 停止全部已启动的钩子，汇总所有错误。
func (l *lifecycle) stop(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	for n := len(l.running); n > 0; n = len(l.running) {
		h := l.running[n-1]
		l.running = l.running[:n-1]
		if h.OnStop == nil {
			continue
		}
		if err := h.OnStop(ctx); err != nil {
			l.logger.Error("hook stop failed", "hook", h.Name, "error", err)
			errs = append(errs, fmt.Errorf("hook %s: %w", h.Name, err))
		}
	}
	return errors.Join(errs...)
}
