// Package retry 为快照与报告落库提供指数退避重试.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// Policy 退避参数。MaxRetries 为 0 时只执行一次.
type Policy struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Jitter         float64
	MaxRetries     int
}

// DefaultPolicy 落库默认策略：最多重试 2 次，退避 50ms 起翻倍，上限 500ms.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     2,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
		Multiplier:     2.0,
		Jitter:         0.1,
	}
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent 标记不可重试的错误，Do 会立即返回其内部错误.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Do 执行 fn 直到成功、遇到 Permanent 错误、重试耗尽或 ctx 结束.
func Do(ctx context.Context, p Policy, fn func(context.Context) error) error {
	backoff := p.InitialBackoff
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		var perm permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
		if attempt >= p.MaxRetries {
			break
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled: %w", errors.Join(ctx.Err(), lastErr))
		case <-timer.C:
		}
		backoff = p.next(backoff)
	}
	if p.MaxRetries == 0 {
		return lastErr
	}
	return fmt.Errorf("failed after %d retries: %w", p.MaxRetries, lastErr)
}

func (p Policy) next(cur time.Duration) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	n := float64(cur) * mult
	if p.Jitter > 0 {
		n += (rand.Float64()*2 - 1) * p.Jitter * n
	}
	d := time.Duration(n)
	if p.MaxBackoff > 0 {
		d = min(d, p.MaxBackoff)
	}
	return d
}
