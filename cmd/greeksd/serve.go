package main

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/wyfcoding/optiongreeks/app"
	"github.com/wyfcoding/optiongreeks/breaker"
	"github.com/wyfcoding/optiongreeks/cache"
	"github.com/wyfcoding/optiongreeks/config"
	"github.com/wyfcoding/optiongreeks/database"
	"github.com/wyfcoding/optiongreeks/health"
	"github.com/wyfcoding/optiongreeks/idgen"
	"github.com/wyfcoding/optiongreeks/limiter"
	"github.com/wyfcoding/optiongreeks/logging"
	"github.com/wyfcoding/optiongreeks/messagequeue"
	"github.com/wyfcoding/optiongreeks/messagequeue/kafka"
	"github.com/wyfcoding/optiongreeks/metrics"
	"github.com/wyfcoding/optiongreeks/redis"
	"github.com/wyfcoding/optiongreeks/repository"
	"github.com/wyfcoding/optiongreeks/retry"
	"github.com/wyfcoding/optiongreeks/server"
	"github.com/wyfcoding/optiongreeks/service"
	"github.com/wyfcoding/optiongreeks/tracing"
)

const requestTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP API, snapshot recorder and fill consumer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			date, err := parseAsOf(asOf)
			if err != nil {
				return err
			}
			a, err := buildApp(opts.cfg, date)
			if err != nil {
				return err
			}
			return a.Run()
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "initial valuation date YYYY-MM-DD; today when empty")
	return cmd
}

// buildApp 组装全部依赖。可选组件（Redis、Kafka）未配置时降级：
// 没有 Redis 时只使用本地缓存，没有 Kafka 时报告只落库不发布、也不消费成交。
func buildApp(cfg *config.Config, asOf time.Time) (*app.App, error) {
	logger := logging.Default()
	config.PrintWithMask(cfg)

	var (
		appOpts  []app.Option
		cleanups []func()
	)
	onClose := func(f func()) {
		cleanups = append(cleanups, f)
		appOpts = append(appOpts, app.WithCleanup(f))
	}
	fail := func(err error) (*app.App, error) {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
		return nil, err
	}

	shutdownTracer, err := tracing.InitTracer(cfg.Tracing)
	if err != nil {
		return nil, err
	}
	onClose(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			logger.Error("tracer shutdown failed", "error", err)
		}
	})

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.NewMetrics(cfg.Server.Name)
		m.SetBuildInfo(cfg.Server.Name, cfg.Version)
	}

	ids, err := idgen.NewGenerator(cfg.Snowflake)
	if err != nil {
		return fail(err)
	}

	checks := health.NewRegistry(0)

	db, err := database.NewDB(cfg.Data.Database, cfg.CircuitBreaker, logger.WithModule("database"), m)
	if err != nil {
		return fail(err)
	}
	onClose(func() { _ = db.Close() })
	if err := repository.Migrate(db.DB); err != nil {
		return fail(err)
	}
	checks.Register("database", health.DBChecker(db))

	l1, err := cache.NewBigCache(cfg.Data.BigCache, m)
	if err != nil {
		return fail(err)
	}
	var l2 cache.Cache
	rdb, closeRedis, err := redis.NewClient(&cfg.Data.Redis, logger.WithModule("redis"), m)
	switch {
	case errors.Is(err, redis.ErrNotConfigured):
		logger.Info("redis not configured, greeks memo is local only")
	case err != nil:
		return fail(err)
	default:
		onClose(closeRedis)
		cb := breaker.NewBreaker(breaker.Settings{Name: "redis", Config: cfg.CircuitBreaker}, m)
		l2 = cache.NewRedisCache(rdb, cfg.Data.Redis.Prefix, cb, m, logger.WithModule("cache"))
		checks.Register("redis", health.RedisChecker(rdb))
	}
	memo := cache.NewMultiLevelCache(l1, l2, logger.WithModule("cache"))
	onClose(func() { _ = memo.Close() })

	kcfg := cfg.MessageQueue.Kafka
	var publisher messagequeue.EventPublisher = messagequeue.NopPublisher{Logger: logger}
	var consumer *kafka.Consumer
	if len(kcfg.Brokers) > 0 {
		producer := kafka.NewProducer(kcfg, logger.WithModule("kafka"), m)
		publisher = producer
		onClose(func() { _ = producer.Close() })
		if kcfg.FillTopic != "" {
			consumer = kafka.NewConsumer(kcfg, kcfg.FillTopic, logger.WithModule("kafka"), m)
			onClose(func() { _ = consumer.Close() })
		}
		checks.Register("kafka", health.KafkaChecker(kcfg.Brokers))
	}

	pubCB := breaker.NewDynamicBreaker("kafka-publish", m, 0, 0)
	pubCB.Update(cfg.CircuitBreaker)

	svc := service.New(cfg, asOf, service.Deps{
		Logger:    logger,
		Metrics:   m,
		Memo:      memo,
		Snapshots: repository.NewSnapshotRepository(db),
		Reports:   repository.NewReportRepository(db),
		Publisher: publisher,
		IDs:       ids,
		Breaker:   pubCB,
		Retry:     retry.DefaultPolicy(),
	})

	lim := limiter.NewDynamicLimiterFromConfig(cfg.RateLimit)
	config.RegisterReloadHook(func(c *config.Config) {
		svc.Reload(c)
		lim.UpdateConfig(c.RateLimit)
	})
	appOpts = append(appOpts, app.WithHook(app.Hook{
		Name:    "config-watch",
		OnStart: func(context.Context) error { config.Watch(); return nil },
	}))

	if cfg.Server.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	engine := server.NewEngine(server.NewHandler(svc, checks), server.EngineOptions{
		ServiceName:    serviceName(cfg),
		Logger:         logger.WithModule("http"),
		Metrics:        m,
		MetricsPath:    metricsPath,
		Limiter:        lim,
		RequestTimeout: requestTimeout,
	})
	appOpts = append(appOpts, app.WithServer(server.NewGinServerFromConfig(engine, cfg.Server, logger.WithModule("http"))))

	if cfg.Recorder.Enabled {
		appOpts = append(appOpts, app.WithServer(server.NewRunner("recorder", svc.Run)))
	}
	if consumer != nil {
		appOpts = append(appOpts, app.WithServer(server.NewRunner("fills", func(ctx context.Context) error {
			return consumer.Consume(ctx, svc.FillHandler())
		})))
	}

	return app.New(cfg.Server.Name, logger, appOpts...), nil
}

func serviceName(cfg *config.Config) string {
	if !cfg.Tracing.Enabled {
		return ""
	}
	if cfg.Tracing.ServiceName != "" {
		return cfg.Tracing.ServiceName
	}
	return cfg.Server.Name
}
