// Package messagequeue 定义事件发布接口，具体实现见 kafka 子包。
package messagequeue

import (
	"context"

	"github.com/wyfcoding/optiongreeks/logging"
)

// EventPublisher 定义了事件发布的通用接口，event 以 JSON 序列化。
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key string, event any) error
	Close() error
}

// NopPublisher 在未配置消息队列时使用，只记录调试日志。
type NopPublisher struct {
	Logger *logging.Logger
}

func (p NopPublisher) Publish(ctx context.Context, topic string, key string, _ any) error {
	if p.Logger != nil {
		p.Logger.DebugContext(ctx, "message queue disabled, event dropped", "topic", topic, "key", key)
	}
	return nil
}

func (NopPublisher) Close() error { return nil }
