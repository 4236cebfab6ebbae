package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/wyfcoding/optiongreeks/logging"
	"github.com/wyfcoding/optiongreeks/tracing"
)

var cacheKey = attribute.Key("cache.key")

type tier struct {
	name string
	c    Cache
}

// MultiLevelCache 按层级从近到远查找，较远层命中时回填全部较近层。
// 只有第一层的错误会返回给调用方，其余层失败只记录日志。
type MultiLevelCache struct {
	tiers  []tier
	group  singleflight.Group
	logger *logging.Logger
}

// NewMultiLevelCache l1 为本地缓存，l2 为 nil 时只使用本地缓存.
func NewMultiLevelCache(l1, l2 Cache, logger *logging.Logger) *MultiLevelCache {
	if logger == nil {
		logger = logging.Default()
	}
	tiers := []tier{{name: "L1", c: l1}}
	if l2 != nil {
		tiers = append(tiers, tier{name: "L2", c: l2})
	}
	return &MultiLevelCache{tiers: tiers, logger: logger}
}

func (c *MultiLevelCache) Get(ctx context.Context, key string, value any) error {
	ctx, span := tracing.StartSpan(ctx, "MultiLevelCache.Get", cacheKey.String(key))
	defer span.End()

	for i, t := range c.tiers {
		err := t.c.Get(ctx, key, value)
		if err == nil {
			span.SetAttributes(attribute.String("cache.hit", t.name))
			c.backfill(ctx, c.tiers[:i], key, value)
			return nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.WarnContext(ctx, "cache tier unavailable", "tier", t.name, "key", key, "error", err)
		}
	}
	span.SetAttributes(attribute.String("cache.hit", "miss"))
	return ErrCacheMiss
}

func (c *MultiLevelCache) backfill(ctx context.Context, tiers []tier, key string, value any) {
	for _, t := range tiers {
		if err := t.c.Set(ctx, key, value, 0); err != nil {
			c.logger.WarnContext(ctx, "cache backfill failed", "tier", t.name, "key", key, "error", err)
		}
	}
}

// Set 由远及近写入，本地层最后写，保证本地命中时远端已有同值.
func (c *MultiLevelCache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	ctx, span := tracing.StartSpan(ctx, "MultiLevelCache.Set", cacheKey.String(key))
	defer span.End()

	for i := len(c.tiers) - 1; i > 0; i-- {
		t := c.tiers[i]
		if err := t.c.Set(ctx, key, value, expiration); err != nil {
			tracing.SetError(ctx, err)
			c.logger.WarnContext(ctx, "cache write failed", "tier", t.name, "key", key, "error", err)
		}
	}
	if err := c.tiers[0].c.Set(ctx, key, value, expiration); err != nil {
		return fmt.Errorf("set %s in %s: %w", key, c.tiers[0].name, err)
	}
	return nil
}

// GetOrSet 全部层未命中时调用 fn 计算，同一 key 的并发请求共享一次计算。
// fn 的结果经 JSON 转写到 value，两者须是兼容的类型。
func (c *MultiLevelCache) GetOrSet(ctx context.Context, key string, value any, expiration time.Duration, fn func() (any, error)) error {
	if c.Get(ctx, key, value) == nil {
		return nil
	}
	res, err, _ := c.group.Do(key, func() (any, error) {
		v, err := fn()
		if err != nil {
			return nil, err
		}
		if err := c.Set(ctx, key, v, expiration); err != nil {
			c.logger.WarnContext(ctx, "cache populate failed", "key", key, "error", err)
		}
		return v, nil
	})
	if err != nil {
		return err
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return json.Unmarshal(raw, value)
}

// Delete 从全部层删除，返回最后一个错误.
func (c *MultiLevelCache) Delete(ctx context.Context, keys ...string) error {
	var last error
	for _, t := range c.tiers {
		if err := t.c.Delete(ctx, keys...); err != nil {
			c.logger.WarnContext(ctx, "cache delete failed", "tier", t.name, "keys", keys, "error", err)
			last = err
		}
	}
	return last
}

func (c *MultiLevelCache) Exists(ctx context.Context, key string) (bool, error) {
	var last error
	for _, t := range c.tiers {
		ok, err := t.c.Exists(ctx, key)
		if ok {
			return true, nil
		}
		if err != nil {
			last = err
		}
	}
	return false, last
}

func (c *MultiLevelCache) Close() error {
	errs := make([]error, 0, len(c.tiers))
	for _, t := range c.tiers {
		if err := t.c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", t.name, err))
		}
	}
	return errors.Join(errs...)
}
