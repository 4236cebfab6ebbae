// Package app 提供了应用程序的生命周期管理：服务启动、信号处理、优雅关闭与资源清理。
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/optiongreeks/logging"
)

// App 是应用程序的核心容器，负责管理应用程序的生命周期。
type App struct {
	name   string
	logger *logging.Logger
	opts   options
	lc     *lifecycle
}

// New 创建一个新的应用程序实例。
func New(name string, logger *logging.Logger, opts ...Option) *App {
	if logger == nil {
		logger = logging.Default()
	}
	o := options{shutdownTimeout: defaultShutdownTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return &App{
		name:   name,
		logger: logger,
		opts:   o,
		lc:     newLifecycle(logger, o.hooks),
	}
}

// Run 启动应用程序并阻塞，直到收到 SIGINT/SIGTERM 或任一服务器异常退出。
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext 与 Run 相同，但由调用方的 ctx 控制退出。
// 启动顺序：生命周期钩子，随后并发启动全部服务器；
// 关闭顺序：停止服务器，逆序停止钩子，逆序执行清理函数。
func (a *App) RunContext(ctx context.Context) error {
	a.logger.Info("Application starting...", "name", a.name, "pid", os.Getpid(), "servers", len(a.opts.servers))

	if err := a.lc.start(ctx); err != nil {
		a.shutdown()
		return fmt.Errorf("start %s: %w", a.name, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range a.opts.servers {
		g.Go(func() error {
			if err := srv.Start(gctx); err != nil {
				a.logger.Error("server exited with error", "error", err)
				return err
			}
			return nil
		})
	}

	<-gctx.Done()
	a.logger.Info("shutting down application", "name", a.name)

	stopErr := a.shutdown()
	runErr := g.Wait()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	if stopErr != nil {
		return stopErr
	}
	a.logger.Info("application shut down gracefully")
	return nil
}

func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.opts.shutdownTimeout)
	defer cancel()

	var errs []error
	for _, srv := range a.opts.servers {
		if err := srv.Stop(shutdownCtx); err != nil {
			a.logger.Error("server failed to stop", "error", err)
			errs = append(errs, err)
		}
	}
	if err := a.lc.stop(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	for i := len(a.opts.cleanups) - 1; i >= 0; i-- {
		a.opts.cleanups[i]()
	}
	return errors.Join(errs...)
}
