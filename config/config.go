package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/chat-api/internal/middleware"
	"github.com/jwalitptl/chat-api/internal/repository/cache"
	"github.com/jwalitptl/chat-api/pkg/circuitbreaker"
	"github.com/jwalitptl/chat-api/pkg/logger"
	"github.com/jwalitptl/chat-api/pkg/messaging/redis"
	"github.com/jwalitptl/chat-api/pkg/queue"
	"github.com/jwalitptl/chat-api/pkg/worker"
)

// EnvPrefix prefixes every environment override, e.g. CHAT_DATABASE_HOST.
const EnvPrefix = "CHAT"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Presence  PresenceConfig  `mapstructure:"presence"`
	Push      PushConfig      `mapstructure:"push"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	MetricsPort     int           `mapstructure:"metrics_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds a lib/pq connection URL.
func (c DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     c.Name,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type QueueConfig struct {
	Name            string        `mapstructure:"name"`
	Attempts        int           `mapstructure:"attempts"`
	BackoffDelay    time.Duration `mapstructure:"backoff_delay"`
	Concurrency     int           `mapstructure:"concurrency"`
	JobTimeout      time.Duration `mapstructure:"job_timeout"`
	ReserveTimeout  time.Duration `mapstructure:"reserve_timeout"`
	PromoteInterval time.Duration `mapstructure:"promote_interval"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
	CompletedAge    time.Duration `mapstructure:"completed_age"`
	CompletedCount  int           `mapstructure:"completed_count"`
	FailedAge       time.Duration `mapstructure:"failed_age"`
	CleanupSchedule string        `mapstructure:"cleanup_schedule"`
	StalledInterval time.Duration `mapstructure:"stalled_interval"`
}

type PresenceConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type PushConfig struct {
	BreakerFailures    uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout     time.Duration `mapstructure:"breaker_timeout"`
	BreakerMaxRequests uint32        `mapstructure:"breaker_max_requests"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	Expiry time.Duration `mapstructure:"expiry"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type CacheConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.request_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_body_bytes", 64<<10)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "chat")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("queue.name", "notifications")
	v.SetDefault("queue.attempts", 3)
	v.SetDefault("queue.backoff_delay", time.Second)
	v.SetDefault("queue.concurrency", 5)
	v.SetDefault("queue.job_timeout", 30*time.Second)
	v.SetDefault("queue.reserve_timeout", 5*time.Second)
	v.SetDefault("queue.promote_interval", time.Second)
	v.SetDefault("queue.lock_ttl", time.Minute)
	v.SetDefault("queue.completed_age", time.Hour)
	v.SetDefault("queue.completed_count", 1000)
	v.SetDefault("queue.failed_age", 24*time.Hour)
	v.SetDefault("queue.cleanup_schedule", "*/5 * * * *")
	v.SetDefault("queue.stalled_interval", 30*time.Second)

	v.SetDefault("presence.ttl", 60*time.Second)

	v.SetDefault("push.breaker_failures", 5)
	v.SetDefault("push.breaker_timeout", 30*time.Second)
	v.SetDefault("push.breaker_max_requests", 1)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "chat-api")
	v.SetDefault("jwt.expiry", time.Hour)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 10.0)
	v.SetDefault("rate_limit.burst", 20)

	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.cleanup_interval", 10*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", false)
}

// LoadConfig reads config.yml from the usual locations, then applies .env
// and CHAT_* environment overrides. A missing config file is not an error.
func LoadConfig() (*Config, error) {
	return Load(".", "./config", "/app/config")
}

func Load(paths ...string) (*Config, error) {
	// .env is optional; real environment variables win over it
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	if c.Queue.Attempts < 1 {
		return errors.New("queue.attempts must be at least 1")
	}
	if c.Queue.Concurrency < 1 {
		return errors.New("queue.concurrency must be at least 1")
	}
	if c.Presence.TTL <= 0 {
		return errors.New("presence.ttl must be positive")
	}
	return nil
}

func (c *RedisConfig) ToBrokerConfig() redis.Config {
	return redis.Config{
		URL:          c.URL,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}

func (c *QueueConfig) ToQueueConfig() queue.Config {
	return queue.Config{
		Name:    c.Name,
		LockTTL: c.LockTTL,
		DefaultOptions: queue.Options{
			Attempts: c.Attempts,
			Backoff: queue.Backoff{
				Type:  queue.BackoffExponential,
				Delay: c.BackoffDelay,
			},
		},
	}
}

func (c *QueueConfig) ToWorkerConfig() worker.ProcessorConfig {
	return worker.ProcessorConfig{
		Concurrency:     c.Concurrency,
		ReserveTimeout:  c.ReserveTimeout,
		JobTimeout:      c.JobTimeout,
		PromoteInterval: c.PromoteInterval,
	}
}

func (c *QueueConfig) ToJanitorConfig() worker.JanitorConfig {
	return worker.JanitorConfig{
		CleanCron: c.CleanupSchedule,
		Retention: queue.Retention{
			CompletedAge:   c.CompletedAge,
			CompletedCount: c.CompletedCount,
			FailedAge:      c.FailedAge,
		},
		StallInterval: c.StalledInterval,
	}
}

func (c *PushConfig) ToBreakerSettings() circuitbreaker.Settings {
	return circuitbreaker.Settings{
		Name:                "push",
		MaxRequests:         c.BreakerMaxRequests,
		Timeout:             c.BreakerTimeout,
		ConsecutiveFailures: c.BreakerFailures,
	}
}

func (c *RateLimitConfig) ToRateLimiterConfig() middleware.RateLimiterConfig {
	return middleware.RateLimiterConfig{
		Rate:  rate.Limit(c.RequestsPerSecond),
		Burst: c.Burst,
	}
}

func (c *CacheConfig) ToCacheConfig() cache.Config {
	return cache.Config{
		TTL:             c.TTL,
		CleanupInterval: c.CleanupInterval,
	}
}

func (c *LogConfig) ToLoggerConfig() *logger.Config {
	return &logger.Config{
		Level:      logger.ParseLevel(c.Level),
		TimeFormat: time.RFC3339,
		Console:    c.Console,
	}
}
