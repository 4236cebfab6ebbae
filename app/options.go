package app

import (
	"time"

	"github.com/wyfcoding/optiongreeks/server"
)

// Option 是一个函数类型，用于配置应用程序选项。
type Option func(*options)

type options struct {
	servers         []server.Server // 应用程序管理的服务器与后台循环
	hooks           []Hook          // 启动前按序执行、关闭时逆序执行的生命周期钩子
	cleanups        []func()        // 关闭时逆序执行的清理函数（关闭数据库连接、Kafka 写入器等）
	shutdownTimeout time.Duration
}

const defaultShutdownTimeout = 10 * time.Second

// WithServer 向应用程序添加一个或多个 `server.Server` 实例。
// 这些服务器将在应用程序启动时并发启动，并在应用程序关闭时被优雅地关闭。
func WithServer(servers ...server.Server) Option {
	return func(o *options) {
		o.servers = append(o.servers, servers...)
	}
}

// WithHook 注册生命周期钩子。
func WithHook(h Hook) Option {
	return func(o *options) {
		o.hooks = append(o.hooks, h)
	}
}

// WithCleanup 向应用程序添加一个清理函数，nil 被忽略。
func WithCleanup(cleanup func()) Option {
	return func(o *options) {
		if cleanup != nil {
			o.cleanups = append(o.cleanups, cleanup)
		}
	}
}

// WithShutdownTimeout 设置关闭阶段的总超时。
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.shutdownTimeout = d
		}
	}
}
