// Package logging 基于 log/slog 输出 JSON 日志：自动附带 trace_id/span_id，
// 支持 lumberjack 文件切割、运行时调整级别，并为 GORM 提供日志适配。
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// level 由本包创建的所有 Handler 共享，热更新时经 SetLevel 调整.
var level = new(slog.LevelVar)

// Config 日志配置，Output 取 stdout、file 或 both，File 为空时只写 stdout。
type Config struct {
	Service    string
	Module     string
	Level      string
	Output     string
	File       string
	MaxSize    int // MB
	MaxBackups int
	MaxAge     int // 天
	Compress   bool
}

// Logger 携带服务名与模块名的 slog.Logger.
type Logger struct {
	*slog.Logger
	Service string
	Module  string
}

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// ParseLevel 不区分大小写，未知值按 info 处理。
func ParseLevel(s string) slog.Level {
	if l, ok := levels[strings.ToLower(s)]; ok {
		return l
	}
	return slog.LevelInfo
}

// SetLevel 调整全部 Logger 的级别。
func SetLevel(s string) {
	level.Set(ParseLevel(s))
}

// NewFromConfig 按配置创建 Logger，同时把共享级别设为 cfg.Level。
func NewFromConfig(cfg Config) *Logger {
	SetLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "timestamp"
			}
			return a
		},
	}

	sinks := outputs(cfg)
	handlers := make(teeHandler, 0, len(sinks))
	for _, w := range sinks {
		handlers = append(handlers, slog.NewJSONHandler(w, opts))
	}
	var h slog.Handler = handlers
	if len(handlers) == 1 {
		h = handlers[0]
	}

	l := slog.New(&TraceHandler{Handler: h}).With(
		slog.String("service", cfg.Service),
		slog.String("module", cfg.Module),
	)
	return &Logger{Logger: l, Service: cfg.Service, Module: cfg.Module}
}

func outputs(cfg Config) []io.Writer {
	if cfg.File == "" {
		return []io.Writer{os.Stdout}
	}
	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	switch cfg.Output {
	case "file":
		return []io.Writer{file}
	case "both":
		return []io.Writer{os.Stdout, file}
	default:
		return []io.Writer{os.Stdout}
	}
}

// NewLogger 写 stdout 的 Logger，lvl 缺省为 info。
func NewLogger(service, module string, lvl ...string) *Logger {
	cfg := Config{Service: service, Module: module, Level: "info"}
	if len(lvl) > 0 {
		cfg.Level = lvl[0]
	}
	return NewFromConfig(cfg)
}

// WithModule 派生同一服务下的子模块 Logger.
func (l *Logger) WithModule(module string) *Logger {
	return &Logger{
		Logger:  l.Logger.With(slog.String("submodule", module)),
		Service: l.Service,
		Module:  module,
	}
}

var (
	defaultOnce   sync.Once
	defaultLogger *Logger
)

// InitLogger 设置进程级 Logger 并接管 slog 默认输出，只有第一次调用生效。
func InitLogger(cfg Config) {
	defaultOnce.Do(func() {
		defaultLogger = NewFromConfig(cfg)
		slog.SetDefault(defaultLogger.Logger)
	})
}

// Default 进程级 Logger，InitLogger 未被调用时按 info 级别初始化。
func Default() *Logger {
	InitLogger(Config{Service: "optiongreeks", Module: "default", Level: "info"})
	return defaultLogger
}

func Warn(ctx context.Context, msg string, args ...any) {
	Default().WarnContext(ctx, msg, args...)
}

func Error(ctx context.Context, msg string, args ...any) {
	Default().ErrorContext(ctx, msg, args...)
}

// LogDuration 在 Debug 级别记录耗时，用法: defer logging.LogDuration(ctx, "greeks")()
func LogDuration(ctx context.Context, operation string, args ...any) func() {
	begin := time.Now()
	return func() {
		Default().DebugContext(ctx, operation+" finished", append(args, "duration", time.Since(begin))...)
	}
}
