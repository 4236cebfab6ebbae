package logging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm/logger"
)

// GormLogger 把 GORM 日志转到 slog。SQL 出错记 Error，超过 SlowThreshold 记 Warn，其余记 Debug，
// 找不到记录不算错误。级别由 slog 控制，LogMode 不生效。
type GormLogger struct {
	logger        *slog.Logger
	SlowThreshold time.Duration
}

func NewGormLogger(l *Logger, slowThreshold time.Duration) *GormLogger {
	return &GormLogger{logger: l.Logger, SlowThreshold: slowThreshold}
}

func (l *GormLogger) LogMode(logger.LogLevel) logger.Interface { return l }

func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	l.logger.InfoContext(ctx, fmt.Sprintf(msg, data...))
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	l.logger.WarnContext(ctx, fmt.Sprintf(msg, data...))
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	l.logger.ErrorContext(ctx, fmt.Sprintf(msg, data...))
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()
	attrs := []any{slog.String("sql", sql), slog.Duration("elapsed", elapsed)}
	if rows >= 0 {
		attrs = append(attrs, slog.Int64("rows", rows))
	}

	switch {
	case err != nil && !errors.Is(err, logger.ErrRecordNotFound):
		l.logger.ErrorContext(ctx, "sql failed", append(attrs, slog.Any("error", err))...)
	case l.SlowThreshold > 0 && elapsed > l.SlowThreshold:
		l.logger.WarnContext(ctx, "slow sql", append(attrs, slog.Duration("threshold", l.SlowThreshold))...)
	default:
		l.logger.DebugContext(ctx, "sql", attrs...)
	}
}
