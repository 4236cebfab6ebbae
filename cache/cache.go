// Package cache 提供 Greeks 记忆化使用的缓存抽象：BigCache 本地一级缓存、Redis 分布式二级缓存与两者的组合。
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wyfcoding/optiongreeks/breaker"
	"github.com/wyfcoding/optiongreeks/logging"
	"github.com/wyfcoding/optiongreeks/metrics"
	"github.com/wyfcoding/optiongreeks/redis"
)

// ErrCacheMiss 表示键不存在或已过期。
var ErrCacheMiss = errors.New("cache miss")

// Cache 定义了缓存接口，值以 JSON 序列化存储。
type Cache interface {
	Get(ctx context.Context, key string, value any) error
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Close() error
}

// RedisCache 基于 Redis 的分布式缓存，所有操作经过熔断器保护。
type RedisCache struct {
	client  redis.Client
	prefix  string
	cb      *breaker.Breaker
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// NewRedisCache 以已建立的客户端创建缓存，cb 为 nil 时不做熔断。
func NewRedisCache(client redis.Client, prefix string, cb *breaker.Breaker, m *metrics.Metrics, logger *logging.Logger) *RedisCache {
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisCache{
		client:  client,
		prefix:  prefix,
		cb:      cb,
		metrics: m,
		logger:  logger,
	}
}

func (c *RedisCache) buildKey(key string) string {
	if c.prefix == "" {
		return key
	}
	return c.prefix + ":" + key
}

// Get 从缓存中获取值，value 必须是指针。键不存在不计入熔断失败。
func (c *RedisCache) Get(ctx context.Context, key string, value any) error {
	data, err := breaker.ExecuteTyped(c.cb, func() ([]byte, error) {
		b, err := c.client.Get(ctx, c.buildKey(key)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return b, err
	})
	switch {
	case err != nil:
		c.metrics.CacheResult("l2", "error")
		return err
	case data == nil:
		c.metrics.CacheResult("l2", "miss")
		return ErrCacheMiss
	}
	c.metrics.CacheResult("l2", "hit")
	return json.Unmarshal(data, value)
}

// Set 设置缓存值。
func (c *RedisCache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	return c.cb.Run(func() error {
		return c.client.Set(ctx, c.buildKey(key), data, expiration).Err()
	})
}

// Delete 从缓存中删除值。
func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	fullKeys := make([]string, len(keys))
	for i, key := range keys {
		fullKeys[i] = c.buildKey(key)
	}
	return c.cb.Run(func() error {
		return c.client.Del(ctx, fullKeys...).Err()
	})
}

// Exists 检查 key 是否存在。
func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := breaker.ExecuteTyped(c.cb, func() (int64, error) {
		return c.client.Exists(ctx, c.buildKey(key)).Result()
	})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close 不关闭共享的客户端，客户端由创建者负责释放。
func (c *RedisCache) Close() error {
	c.logger.Info("redis cache detached", "prefix", c.prefix)
	return nil
}
