// Package config handles application configuration loading and validation using Viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Discord   DiscordConfig   `mapstructure:"discord"`
	Points    PointsConfig    `mapstructure:"points"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
	AdminToken  string `mapstructure:"admin_token"` // Bearer token for the admin API; empty disables the check
}

// DiscordConfig contains Discord webhook notification settings.
type DiscordConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Username   string        `mapstructure:"username"`
	Enabled    bool          `mapstructure:"enabled"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"` // postgres or sqlite
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains PostgreSQL database connection and pool settings.
type PostgresConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Database        string `mapstructure:"database"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// SQLiteConfig contains the SQLite database file location.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig contains Redis connection and pool settings.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// Addr returns the host:port address of the Redis server.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// PointsConfig contains the points formula parameters.
type PointsConfig struct {
	Base      float64 `mapstructure:"base"`
	Decay     float64 `mapstructure:"decay"`
	Precision int     `mapstructure:"precision"`
}

// EngineConfig contains ranking engine behaviour switches.
type EngineConfig struct {
	// AffectedUsersOnly limits re-aggregation after a list change to users
	// holding approved records on levels whose points changed. When false,
	// every list change re-aggregates all users.
	AffectedUsersOnly bool `mapstructure:"affected_users_only"`
}

// CacheConfig contains ordered-list cache settings.
type CacheConfig struct {
	Backend string        `mapstructure:"backend"` // memory or redis
	TTL     time.Duration `mapstructure:"ttl"`
}

// SchedulerConfig contains reconciliation job settings.
type SchedulerConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	ReconcileSchedule string `mapstructure:"reconcile_schedule"` // Cron expression
	Timezone          string `mapstructure:"timezone"`
}

// MetricsConfig contains metrics settings.
type MetricsConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig contains Prometheus metrics exporter settings.
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig contains application logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", "development")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 25)
	v.SetDefault("database.postgres.max_idle_conns", 5)
	v.SetDefault("database.postgres.conn_max_lifetime", 300)
	v.SetDefault("database.sqlite.path", "levellist.db")
	v.SetDefault("database.redis.host", "localhost")
	v.SetDefault("database.redis.port", 6379)
	v.SetDefault("database.redis.pool_size", 10)

	v.SetDefault("discord.username", "Level List")
	v.SetDefault("discord.timeout", 10*time.Second)

	v.SetDefault("points.base", 250.0)
	v.SetDefault("points.decay", 0.9475)
	v.SetDefault("points.precision", 2)

	v.SetDefault("engine.affected_users_only", true)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", 10*time.Minute)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.reconcile_schedule", "0 4 * * *")
	v.SetDefault("scheduler.timezone", "UTC")

	v.SetDefault("metrics.prometheus.enabled", true)
	v.SetDefault("metrics.prometheus.path", "/metrics")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Load reads configuration from file and environment variables.
// A .env file in the working directory is loaded first when present.
// A missing config file is not an error when configPath is empty.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/levellist/")
	}

	// Server configuration
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.environment", "SERVER_ENVIRONMENT")
	_ = v.BindEnv("server.admin_token", "ADMIN_TOKEN")

	// Database configuration
	_ = v.BindEnv("database.driver", "DATABASE_DRIVER")
	_ = v.BindEnv("database.sqlite.path", "SQLITE_PATH")
	_ = v.BindEnv("database.postgres.host", "POSTGRES_HOST")
	_ = v.BindEnv("database.postgres.port", "POSTGRES_PORT")
	_ = v.BindEnv("database.postgres.database", "POSTGRES_DB")
	_ = v.BindEnv("database.postgres.user", "POSTGRES_USER")
	_ = v.BindEnv("database.postgres.password", "POSTGRES_PASSWORD")
	_ = v.BindEnv("database.postgres.ssl_mode", "POSTGRES_SSL_MODE")
	_ = v.BindEnv("database.postgres.max_open_conns", "POSTGRES_MAX_OPEN_CONNS")
	_ = v.BindEnv("database.postgres.max_idle_conns", "POSTGRES_MAX_IDLE_CONNS")
	_ = v.BindEnv("database.postgres.conn_max_lifetime", "POSTGRES_CONN_MAX_LIFETIME")

	// Redis configuration
	_ = v.BindEnv("database.redis.host", "REDIS_HOST")
	_ = v.BindEnv("database.redis.port", "REDIS_PORT")
	_ = v.BindEnv("database.redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("database.redis.db", "REDIS_DB")
	_ = v.BindEnv("database.redis.pool_size", "REDIS_POOL_SIZE")

	// Discord configuration
	_ = v.BindEnv("discord.webhook_url", "DISCORD_WEBHOOK_URL")
	_ = v.BindEnv("discord.username", "DISCORD_USERNAME")
	_ = v.BindEnv("discord.enabled", "DISCORD_ENABLED")

	// Points and engine configuration
	_ = v.BindEnv("points.base", "POINTS_BASE")
	_ = v.BindEnv("points.decay", "POINTS_DECAY")
	_ = v.BindEnv("points.precision", "POINTS_PRECISION")
	_ = v.BindEnv("engine.affected_users_only", "ENGINE_AFFECTED_USERS_ONLY")

	// Cache configuration
	_ = v.BindEnv("cache.backend", "CACHE_BACKEND")
	_ = v.BindEnv("cache.ttl", "CACHE_TTL")

	// Logging configuration
	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("logging.format", "LOG_FORMAT")
	_ = v.BindEnv("logging.output", "LOG_OUTPUT")

	// Scheduler configuration
	_ = v.BindEnv("scheduler.enabled", "SCHEDULER_ENABLED")
	_ = v.BindEnv("scheduler.reconcile_schedule", "SCHEDULER_RECONCILE_SCHEDULE")
	_ = v.BindEnv("scheduler.timezone", "SCHEDULER_TIMEZONE")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}
		if c.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
		if c.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required")
		}
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required")
		}
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}

	if c.Points.Base <= 0 {
		return fmt.Errorf("points.base must be positive")
	}
	if c.Points.Decay <= 0 || c.Points.Decay > 1 {
		return fmt.Errorf("points.decay must be in (0, 1]")
	}
	if c.Points.Precision < 0 || c.Points.Precision > 6 {
		return fmt.Errorf("points.precision must be between 0 and 6")
	}

	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Database.Redis.Host == "" {
			return fmt.Errorf("database.redis.host is required for the redis cache backend")
		}
	default:
		return fmt.Errorf("cache.backend must be memory or redis, got %q", c.Cache.Backend)
	}

	if c.Discord.Enabled && c.Discord.WebhookURL == "" {
		return fmt.Errorf("discord.webhook_url is required when discord is enabled")
	}

	if c.Scheduler.Enabled {
		if _, err := cron.ParseStandard(c.Scheduler.ReconcileSchedule); err != nil {
			return fmt.Errorf("scheduler.reconcile_schedule is invalid: %w", err)
		}
		if _, err := c.Scheduler.GetLocation(); err != nil {
			return fmt.Errorf("scheduler.timezone is invalid: %w", err)
		}
	}

	return nil
}

// GetLocation returns the timezone location.
func (c *SchedulerConfig) GetLocation() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}
