// Package config 提供统一的配置加载与管理能力：TOML 文件、APP_ 前缀环境变量覆盖、结构校验与热更新。
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gorm.io/gorm/logger"

	"github.com/wyfcoding/optiongreeks/logging"
)

// Config 全局顶级配置结构.
type Config struct {
	Version        string               `mapstructure:"version"        toml:"version"`
	Server         ServerConfig         `mapstructure:"server"         toml:"server"`
	Log            LogConfig            `mapstructure:"log"            toml:"log"`
	Pricing        PricingConfig        `mapstructure:"pricing"        toml:"pricing"`
	Recorder       RecorderConfig       `mapstructure:"recorder"       toml:"recorder"`
	Data           DataConfig           `mapstructure:"data"           toml:"data"`
	MessageQueue   MessageQueueConfig   `mapstructure:"messagequeue"   toml:"messagequeue"`
	Tracing        TracingConfig        `mapstructure:"tracing"        toml:"tracing"`
	Metrics        MetricsConfig        `mapstructure:"metrics"        toml:"metrics"`
	RateLimit      RateLimitConfig      `mapstructure:"ratelimit"      toml:"ratelimit"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuitbreaker" toml:"circuitbreaker"`
	Snowflake      SnowflakeConfig      `mapstructure:"snowflake"      toml:"snowflake"`
}

// ServerConfig 定义服务器运行时的基础网络与环境参数.
type ServerConfig struct {
	Name        string `mapstructure:"name"        toml:"name"        validate:"required"`
	Environment string `mapstructure:"environment" toml:"environment" validate:"oneof=dev test prod"`
	HTTP        struct {
		Addr              string        `mapstructure:"addr"                toml:"addr"`
		Port              int           `mapstructure:"port"                toml:"port"                validate:"required,min=1,max=65535"`
		ReadTimeout       time.Duration `mapstructure:"read_timeout"        toml:"read_timeout"`
		ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" toml:"read_header_timeout"`
		WriteTimeout      time.Duration `mapstructure:"write_timeout"       toml:"write_timeout"`
		IdleTimeout       time.Duration `mapstructure:"idle_timeout"        toml:"idle_timeout"`
		MaxHeaderBytes    int           `mapstructure:"max_header_bytes"    toml:"max_header_bytes"`
	} `mapstructure:"http" toml:"http"`
}

// Addr 返回 HTTP 监听地址，Addr 为空时监听全部网卡。
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.HTTP.Addr, strconv.Itoa(c.HTTP.Port))
}

// PricingConfig 定价引擎参数。
type PricingConfig struct {
	RiskFreeRate    float64       `mapstructure:"risk_free_rate"    toml:"risk_free_rate"`
	Dividend        float64       `mapstructure:"dividend"          toml:"dividend"`
	TreeSteps       int           `mapstructure:"tree_steps"        toml:"tree_steps"        validate:"gte=0"`
	FDStepSpot      float64       `mapstructure:"fd_step_spot"      toml:"fd_step_spot"      validate:"gte=0,lt=1"`
	FDStepVol       float64       `mapstructure:"fd_step_vol"       toml:"fd_step_vol"       validate:"gte=0,lt=1"`
	FDStepRate      float64       `mapstructure:"fd_step_rate"      toml:"fd_step_rate"      validate:"gte=0,lt=1"`
	IVAccuracy      float64       `mapstructure:"iv_accuracy"       toml:"iv_accuracy"       validate:"gte=0"`
	IVMaxIterations int           `mapstructure:"iv_max_iterations" toml:"iv_max_iterations" validate:"gte=0"`
	UseTreeIV       bool          `mapstructure:"use_tree_iv"       toml:"use_tree_iv"`
	Calendar        string        `mapstructure:"calendar"          toml:"calendar"          validate:"omitempty,oneof=nyse weekends"`
	ModelVersion    int           `mapstructure:"model_version"     toml:"model_version"`
	MemoTTL         time.Duration `mapstructure:"memo_ttl"          toml:"memo_ttl"`
}

// RecorderConfig 持仓快照记录参数。
type RecorderConfig struct {
	Enabled       bool          `mapstructure:"enabled"        toml:"enabled"`
	Interval      time.Duration `mapstructure:"interval"       toml:"interval"`
	MaxGoroutines int           `mapstructure:"max_goroutines" toml:"max_goroutines"`
	HVWindow      int           `mapstructure:"hv_window"      toml:"hv_window"`
}

// DataConfig 汇集了所有持久化存储与缓存的数据源配置.
type DataConfig struct {
	Database DatabaseConfig `mapstructure:"database" toml:"database"`
	Redis    RedisConfig    `mapstructure:"redis"    toml:"redis"`
	BigCache BigCacheConfig `mapstructure:"bigcache" toml:"bigcache"`
}

// DatabaseConfig 定义单数据库实例连接与连接池参数.
type DatabaseConfig struct {
	Driver          string          `mapstructure:"driver"            toml:"driver"            validate:"omitempty,oneof=mysql postgres sqlite"`
	DSN             string          `mapstructure:"dsn"               toml:"dsn"`
	ConnMaxLifetime time.Duration   `mapstructure:"conn_max_lifetime" toml:"conn_max_lifetime"`
	SlowThreshold   time.Duration   `mapstructure:"slow_threshold"    toml:"slow_threshold"`
	LogLevel        logger.LogLevel `mapstructure:"log_level"         toml:"log_level"`
	MaxIdleConns    int             `mapstructure:"max_idle_conns"    toml:"max_idle_conns"`
	MaxOpenConns    int             `mapstructure:"max_open_conns"    toml:"max_open_conns"`
}

// RedisConfig 定义 Redis 连接与池化参数，Addrs 为空表示不启用二级缓存.
type RedisConfig struct {
	Addrs        []string      `mapstructure:"addrs"          toml:"addrs"`
	Password     string        `mapstructure:"password"       toml:"password"`
	DB           int           `mapstructure:"db"             toml:"db"`
	PoolSize     int           `mapstructure:"pool_size"      toml:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns" toml:"min_idle_conns"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"   toml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"  toml:"write_timeout"`
	Prefix       string        `mapstructure:"prefix"         toml:"prefix"`
}

// BigCacheConfig 高性能本地内存缓存参数.
type BigCacheConfig struct {
	LifeWindow       time.Duration `mapstructure:"life_window"         toml:"life_window"`
	CleanWindow      time.Duration `mapstructure:"clean_window"        toml:"clean_window"`
	Shards           int           `mapstructure:"shards"              toml:"shards"`
	MaxEntrySize     int           `mapstructure:"max_entry_size"      toml:"max_entry_size"`
	HardMaxCacheSize int           `mapstructure:"hard_max_cache_size" toml:"hard_max_cache_size"`
	Verbose          bool          `mapstructure:"verbose"             toml:"verbose"`
}

// LogConfig 定义日志输出、级别与切割策略.
type LogConfig struct {
	Level         string        `mapstructure:"level"          toml:"level"`          // 日志级别。
	Output        string        `mapstructure:"output"         toml:"output"`         // stdout | file | both
	File          string        `mapstructure:"file"           toml:"file"`           // 日志文件路径。
	MaxSize       int           `mapstructure:"max_size"       toml:"max_size"`       // 单个文件最大大小 (MB)。
	MaxBackups    int           `mapstructure:"max_backups"    toml:"max_backups"`    // 最大备份数。
	MaxAge        int           `mapstructure:"max_age"        toml:"max_age"`        // 最大保留天数。
	Compress      bool          `mapstructure:"compress"       toml:"compress"`       // 是否启用压缩。
	SlowThreshold time.Duration `mapstructure:"slow_threshold" toml:"slow_threshold"` // HTTP 慢请求阈值。
}

// Logging 转换为 logging 包的配置。
func (c LogConfig) Logging(service, module string) logging.Config {
	return logging.Config{
		Service:    service,
		Module:     module,
		Level:      c.Level,
		Output:     c.Output,
		File:       c.File,
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAge,
		Compress:   c.Compress,
	}
}

// SnowflakeConfig 雪花算法分布式 ID 生成器参数.
type SnowflakeConfig struct {
	StartTime string `mapstructure:"start_time" toml:"start_time"`
	Type      string `mapstructure:"type"       toml:"type"       validate:"omitempty,oneof=snowflake sonyflake"`
	MachineID int64  `mapstructure:"machine_id" toml:"machine_id"`
}

// MessageQueueConfig 聚合所有消息中间件配置.
type MessageQueueConfig struct {
	Kafka KafkaConfig `mapstructure:"kafka" toml:"kafka"`
}

// KafkaConfig 定义 Kafka 参数，Brokers 为空表示不发布归因报告也不消费成交.
type KafkaConfig struct {
	Topic        string        `mapstructure:"topic"         toml:"topic"`
	FillTopic    string        `mapstructure:"fill_topic"    toml:"fill_topic"`
	GroupID      string        `mapstructure:"group_id"      toml:"group_id"`
	Brokers      []string      `mapstructure:"brokers"       toml:"brokers"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"  toml:"dial_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" toml:"write_timeout"`
	MaxAttempts  int           `mapstructure:"max_attempts"  toml:"max_attempts"`
	RequiredAcks int           `mapstructure:"required_acks" toml:"required_acks"`
	Async        bool          `mapstructure:"async"         toml:"async"`
	DLQEnabled   bool          `mapstructure:"dlq_enabled"   toml:"dlq_enabled"`
	DLQTopic     string        `mapstructure:"dlq_topic"     toml:"dlq_topic"`
}

// TracingConfig 分布式链路追踪（OpenTelemetry）配置.
type TracingConfig struct {
	ServiceName  string  `mapstructure:"service_name"  toml:"service_name"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" toml:"otlp_endpoint"`
	SamplerRatio float64 `mapstructure:"sampler_ratio" toml:"sampler_ratio" validate:"gte=0,lte=1"`
	Enabled      bool    `mapstructure:"enabled"       toml:"enabled"`
}

// MetricsConfig 普罗米修斯监控指标暴露配置.
type MetricsConfig struct {
	Path    string `mapstructure:"path"    toml:"path"`
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
}

// RateLimitConfig 定义令牌桶限流参数.
type RateLimitConfig struct {
	Rate    int  `mapstructure:"rate"    toml:"rate"`
	Burst   int  `mapstructure:"burst"   toml:"burst"`
	Enabled bool `mapstructure:"enabled" toml:"enabled"`
}

// CircuitBreakerConfig 定义熔断器（gobreaker）的保护策略.
type CircuitBreakerConfig struct {
	Interval    time.Duration `mapstructure:"interval"     toml:"interval"`
	Timeout     time.Duration `mapstructure:"timeout"      toml:"timeout"`
	MaxRequests uint32        `mapstructure:"max_requests" toml:"max_requests"`
	Enabled     bool          `mapstructure:"enabled"      toml:"enabled"`
}

var (
	v        = viper.New()
	validate = validator.New()

	hooksMu  sync.Mutex
	onReload []func(*Config)

	watchOnce sync.Once
)

// reloadDelay 编辑器保存文件常触发多次写事件，最后一次事件之后静默该时长才重新加载.
const reloadDelay = 500 * time.Millisecond

// RegisterReloadHook 注册配置热更新回调，回调收到的是新解析出的配置副本。
func RegisterReloadHook(hook func(*Config)) {
	if hook == nil {
		return
	}
	hooksMu.Lock()
	onReload = append(onReload, hook)
	hooksMu.Unlock()
}

func setDefaults(v *viper.Viper) {
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
}

var defaults = map[string]any{
	"version":                         "v1",
	"server.name":                     "optiongreeks",
	"server.environment":              "dev",
	"server.http.port":                8080,
	"server.http.read_header_timeout": 5 * time.Second,
	"log.level":                       "info",
	"log.output":                      "stdout",
	"pricing.risk_free_rate":          0.0433,
	"pricing.tree_steps":              100,
	"pricing.fd_step_spot":            0.01,
	"pricing.fd_step_vol":             0.01,
	"pricing.fd_step_rate":            0.01,
	"pricing.iv_accuracy":             1e-4,
	"pricing.iv_max_iterations":       200,
	"pricing.calendar":                "nyse",
	"pricing.memo_ttl":                time.Minute,
	"recorder.interval":               time.Minute,
	"recorder.max_goroutines":         8,
	"recorder.hv_window":              30,
	"data.database.driver":            "sqlite",
	"data.database.dsn":               "file:optiongreeks.db?cache=shared",
	"data.bigcache.life_window":       time.Minute,
	"data.bigcache.shards":            64,
	"messagequeue.kafka.topic":        "optiongreeks.explain",
	"messagequeue.kafka.fill_topic":   "optiongreeks.fills",
	"messagequeue.kafka.group_id":     "optiongreeks",
	"metrics.path":                    "/metrics",
	"metrics.enabled":                 true,
	"tracing.sampler_ratio":           1.0,
	"circuitbreaker.timeout":          30 * time.Second,
	"snowflake.type":                  "sonyflake",
}

// Default 返回只由默认值构成的配置，用于没有配置文件的命令行场景。
func Default() *Config {
	dv := viper.New()
	setDefaults(dv)
	var c Config
	_ = dv.Unmarshal(&c)
	return &c
}

// Load 读取 TOML 配置文件到 conf 并校验。APP_ 前缀的环境变量覆盖同名配置项，
// 如 APP_PRICING_TREE_STEPS 覆盖 pricing.tree_steps。
func Load(path string, conf *Config) error {
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return decode(conf)
}

func decode(conf *Config) error {
	if err := v.Unmarshal(conf); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validate.Struct(conf); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// Watch 监听 Load 读取过的配置文件。文件变化后重新解析校验，
// 通过时调整日志级别并依次调用热更新回调；失败只记录日志，保留旧配置。
// 未调用过 Load 时什么也不做，重复调用只生效一次。
func Watch() {
	if v.ConfigFileUsed() == "" {
		return
	}
	watchOnce.Do(func() {
		var (
			mu    sync.Mutex
			timer *time.Timer
		)
		v.OnConfigChange(func(e fsnotify.Event) {
			mu.Lock()
			defer mu.Unlock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDelay, func() { reload(e.Name) })
		})
		v.WatchConfig()
		slog.Info("watching config file", "file", v.ConfigFileUsed())
	})
}

func reload(file string) {
	var next Config
	if err := decode(&next); err != nil {
		slog.Error("config reload rejected", "file", file, "error", err)
		return
	}
	logging.SetLevel(next.Log.Level)

	hooksMu.Lock()
	hooks := slices.Clone(onReload)
	hooksMu.Unlock()
	for _, hook := range hooks {
		hook(&next)
	}
	slog.Info("config reloaded", "file", file, "hooks", len(hooks))
}

var sensitiveKeys = []string{"password", "secret", "dsn", "key", "token"}

// PrintWithMask 以 JSON 打印配置，键名含敏感词的叶子值替换为 ******。
func PrintWithMask(conf any) {
	raw, err := json.Marshal(conf)
	if err != nil {
		slog.Error("marshal config for printing failed", "error", err)
		return
	}
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		slog.Error("decode config for masking failed", "error", err)
		return
	}
	out, err := json.MarshalIndent(redact(tree), "  ", "  ")
	if err != nil {
		slog.Error("marshal masked config failed", "error", err)
		return
	}
	slog.Info("effective configuration", "config", string(out))
}

func redact(node any) any {
	switch n := node.(type) {
	case map[string]any:
		for k, val := range n {
			if isSensitive(k) && !isContainer(val) {
				n[k] = "******"
				continue
			}
			n[k] = redact(val)
		}
	case []any:
		for i := range n {
			n[i] = redact(n[i])
		}
	}
	return node
}

func isSensitive(key string) bool {
	lower := strings.ToLower(key)
	return slices.ContainsFunc(sensitiveKeys, func(s string) bool { return strings.Contains(lower, s) })
}

func isContainer(val any) bool {
	switch val.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}
