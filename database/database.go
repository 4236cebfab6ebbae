// Package database 提供基于 GORM 的数据库连接封装（mysql、postgres、sqlite）与泛型仓储。
package database

import (
	"context"
	"errors"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/wyfcoding/optiongreeks/breaker"
	"github.com/wyfcoding/optiongreeks/config"
	"github.com/wyfcoding/optiongreeks/logging"
	"github.com/wyfcoding/optiongreeks/metrics"
	"github.com/wyfcoding/optiongreeks/xerrors"
)

const defaultSlowThreshold = 200 * time.Millisecond

// DB 封装了 GORM 实例.
type DB struct {
	*gorm.DB
	cfg     config.DatabaseConfig
	breaker *breaker.Breaker
	logger  *logging.Logger
}

func dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "mysql":
		return mysql.Open(cfg.DSN), nil
	case "postgres":
		return postgres.Open(cfg.DSN), nil
	case "sqlite", "":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "file::memory:?cache=shared"
		}
		return sqlite.Open(dsn), nil
	default:
		return nil, xerrors.New(xerrors.ErrInvalidArg, 400201, "unsupported database driver", cfg.Driver, nil)
	}
}

// NewDB 初始化并返回一个功能增强的数据库连接封装.
func NewDB(cfg config.DatabaseConfig, cbCfg config.CircuitBreakerConfig, logger *logging.Logger, m *metrics.Metrics) (*DB, error) {
	if logger == nil {
		logger = logging.Default()
	}
	dialer, err := dialector(cfg)
	if err != nil {
		return nil, err
	}

	slow := cfg.SlowThreshold
	if slow <= 0 {
		slow = defaultSlowThreshold
	}

	gormDB, err := gorm.Open(dialer, &gorm.Config{
		Logger:      logging.NewGormLogger(logger, slow),
		PrepareStmt: cfg.Driver != "sqlite" && cfg.Driver != "",
	})
	if err != nil {
		return nil, xerrors.WrapInternal(err, "failed to open database connection")
	}

	if errTracing := gormDB.Use(tracing.NewPlugin()); errTracing != nil {
		return nil, xerrors.WrapInternal(errTracing, "failed to register gorm otel plugin")
	}

	sqlDB, errDB := gormDB.DB()
	if errDB != nil {
		return nil, xerrors.WrapInternal(errDB, "failed to get underlying sql.DB")
	}

	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	cb := breaker.NewBreaker(breaker.Settings{
		Name:   "database-" + cfg.Driver,
		Config: cbCfg,
		Ignore: func(err error) bool { return errors.Is(err, gorm.ErrRecordNotFound) },
	}, m)

	logger.Info("database connected", "driver", cfg.Driver)

	return &DB{
		DB:      gormDB,
		cfg:     cfg,
		breaker: cb,
		logger:  logger,
	}, nil
}

// Guard 在熔断保护下以绑定 ctx 的会话执行 fn；熔断打开时返回 503 类错误.
func (db *DB) Guard(ctx context.Context, fn func(tx *gorm.DB) error) error {
	err := db.breaker.Run(func() error {
		return fn(db.DB.WithContext(ctx))
	})
	if errors.Is(err, breaker.ErrServiceUnavailable) {
		return xerrors.New(xerrors.ErrUnavailable, 503201, "database unavailable", db.cfg.Driver, err)
	}
	return err
}

// Driver 返回驱动名称。
func (db *DB) Driver() string {
	return db.cfg.Driver
}

// Ping 检查底层连接是否可用。
func (db *DB) Ping(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭底层连接池。
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
