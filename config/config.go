package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Stream    StreamConfig    `mapstructure:"stream"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Log       LogConfig       `mapstructure:"log"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Timeline  TimelineConfig  `mapstructure:"timeline"`
	Fanout    FanoutConfig    `mapstructure:"fanout"`
	Expiry    ExpiryConfig    `mapstructure:"expiry"`
	Policies  PoliciesConfig  `mapstructure:"policies"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres | sqlite
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

// StreamConfig 实时推送的队列长度
type StreamConfig struct {
	HubQueueSize  int `mapstructure:"hub_queue_size"`
	SendQueueSize int `mapstructure:"send_queue_size"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type SentryConfig struct {
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// CacheConfig fan-out 缓存
type CacheConfig struct {
	MaxLen int `mapstructure:"max_len"`
}

// TimelineConfig 读路径
type TimelineConfig struct {
	DBFallback      bool          `mapstructure:"db_fallback"`
	FallbackTimeout time.Duration `mapstructure:"fallback_timeout"`
}

type FanoutConfig struct {
	Workers      int           `mapstructure:"workers"`
	BatchSize    int           `mapstructure:"batch_size"`
	ClaimLimit   int           `mapstructure:"claim_limit"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// Lease processing 行超过该时长未完成即视为 worker 已退出，重新排队
	Lease time.Duration `mapstructure:"lease"`
}

type ExpiryConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// Policy 某角色可用的功能
type Policy struct {
	MutualTimeline bool `mapstructure:"mutual_timeline"`
}

// PoliciesConfig 默认策略 + 按角色覆盖
type PoliciesConfig struct {
	Default Policy            `mapstructure:"default"`
	Roles   map[string]Policy `mapstructure:"roles"`
}

// For 返回角色对应的策略，未配置的角色使用默认值
func (p PoliciesConfig) For(role string) Policy {
	if role != "" {
		if pol, ok := p.Roles[role]; ok {
			return pol
		}
	}
	return p.Default
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "host=localhost user=postgres password=postgres dbname=timeline port=5432 sslmode=disable")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.addr", "localhost:6379")

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject", "notes.stream")

	v.SetDefault("stream.hub_queue_size", 256)
	v.SetDefault("stream.send_queue_size", 256)

	v.SetDefault("log.level", "info")

	v.SetDefault("sentry.environment", "development")
	v.SetDefault("sentry.sample_rate", 1.0)

	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.service_name", "timeline-fanout")
	v.SetDefault("tracing.sample_ratio", 0.1)

	v.SetDefault("rate_limit.rps", 10)
	v.SetDefault("rate_limit.burst", 20)

	v.SetDefault("cache.max_len", 300)

	v.SetDefault("timeline.db_fallback", true)
	v.SetDefault("timeline.fallback_timeout", 3*time.Second)

	v.SetDefault("fanout.workers", 4)
	v.SetDefault("fanout.batch_size", 500)
	v.SetDefault("fanout.claim_limit", 128)
	v.SetDefault("fanout.poll_interval", 50*time.Millisecond)
	v.SetDefault("fanout.lease", 2*time.Minute)

	v.SetDefault("expiry.interval", time.Minute)

	v.SetDefault("policies.default.mutual_timeline", true)
}

// Load 读取 config/config.yaml（可用 CONFIG_PATH 覆盖目录），环境变量 APP_* 优先
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		v.AddConfigPath(p)
	}
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
