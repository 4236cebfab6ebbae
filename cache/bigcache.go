package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"

	"github.com/wyfcoding/optiongreeks/config"
	"github.com/wyfcoding/optiongreeks/metrics"
)

// BigCache 实现了 Cache 接口，使用 allegro/bigcache 作为底层存储。
// 过期时间由 LifeWindow 统一决定，Set 的 expiration 参数被忽略。
type BigCache struct {
	cache   *bigcache.BigCache
	metrics *metrics.Metrics
}

// NewBigCache 按配置创建本地缓存，未配置的项使用 bigcache 默认值。
func NewBigCache(cfg config.BigCacheConfig, m *metrics.Metrics) (*BigCache, error) {
	life := cfg.LifeWindow
	if life <= 0 {
		life = time.Minute
	}
	bc := bigcache.DefaultConfig(life)
	if cfg.CleanWindow > 0 {
		bc.CleanWindow = cfg.CleanWindow
	}
	if cfg.Shards > 0 {
		bc.Shards = cfg.Shards
	}
	if cfg.MaxEntrySize > 0 {
		bc.MaxEntrySize = cfg.MaxEntrySize
	}
	bc.HardMaxCacheSize = cfg.HardMaxCacheSize
	bc.Verbose = cfg.Verbose

	cache, err := bigcache.New(context.Background(), bc)
	if err != nil {
		return nil, fmt.Errorf("初始化 bigcache 失败: %w", err)
	}

	return &BigCache{cache: cache, metrics: m}, nil
}

// Get 从 BigCache 中获取指定键的值，value 必须是指针。
func (c *BigCache) Get(_ context.Context, key string, value any) error {
	data, err := c.cache.Get(key)
	if err != nil {
		if errors.Is(err, bigcache.ErrEntryNotFound) {
			c.metrics.CacheResult("l1", "miss")
			return ErrCacheMiss
		}
		c.metrics.CacheResult("l1", "error")
		return err
	}
	c.metrics.CacheResult("l1", "hit")
	return json.Unmarshal(data, value)
}

func (c *BigCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.cache.Set(key, data)
}

// Delete 删除一个或多个键，不存在的键被忽略。
func (c *BigCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		if err := c.cache.Delete(key); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
			return err
		}
	}
	return nil
}

func (c *BigCache) Exists(_ context.Context, key string) (bool, error) {
	_, err := c.cache.Get(key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return false, nil
	}
	return false, err
}

// Len 返回当前条目数。
func (c *BigCache) Len() int {
	return c.cache.Len()
}

func (c *BigCache) Close() error {
	return c.cache.Close()
}
