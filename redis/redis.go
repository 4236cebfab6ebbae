// Package redis 构造 Greeks 二级缓存使用的 go-redis 客户端，命令耗时与结果计入 Prometheus。
package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wyfcoding/optiongreeks/config"
	"github.com/wyfcoding/optiongreeks/logging"
	"github.com/wyfcoding/optiongreeks/metrics"
)

// Client 单节点与集群共用的客户端接口.
type Client = redis.UniversalClient

// Nil 键不存在.
const Nil = redis.Nil

// ErrNotConfigured 没有配置任何地址，调用方据此退化为只用本地缓存.
var ErrNotConfigured = errors.New("redis: no address configured")

const pingTimeout = 5 * time.Second

// NewClient 建立连接并 PING 一次，失败时关闭客户端。返回的 cleanup 关闭连接池。
func NewClient(cfg *config.RedisConfig, logger *logging.Logger, m *metrics.Metrics) (Client, func(), error) {
	if len(cfg.Addrs) == 0 {
		return nil, nil, ErrNotConfigured
	}
	if logger == nil {
		logger = logging.Default()
	}

	client := redis.NewUniversalClient(universalOptions(cfg))
	client.AddHook(instrument{m: m})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping %v: %w", cfg.Addrs, err)
	}
	logger.Info("redis connected", "addrs", cfg.Addrs, "db", cfg.DB)

	return client, func() {
		if err := client.Close(); err != nil {
			logger.Error("redis close failed", "error", err)
		}
	}, nil
}

func universalOptions(cfg *config.RedisConfig) *redis.UniversalOptions {
	return &redis.UniversalOptions{
		Addrs:        cfg.Addrs,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}

// instrument 实现 redis.Hook，按命令名记录结果与耗时.
type instrument struct {
	m *metrics.Metrics
}

func (i instrument) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (i instrument) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		begin := time.Now()
		err := next(ctx, cmd)
		i.m.RedisCommand(cmd.Name(), outcome(err), time.Since(begin))
		return err
	}
}

func (i instrument) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		begin := time.Now()
		err := next(ctx, cmds)
		i.m.RedisCommand("pipeline", outcome(err), time.Since(begin))
		return err
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, redis.Nil):
		return "nil"
	default:
		return "error"
	}
}
