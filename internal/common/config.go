package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Broker      BrokerConfig    `toml:"broker"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Auth        AuthConfig      `toml:"auth"`
	Webhook     WebhookConfig   `toml:"webhook"`
	WebSocket   WebSocketConfig `toml:"websocket"`
	Queues      QueuesConfig    `toml:"queues"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// BrokerConfig configures the Redis-compatible broker connection shared
// by the Queue Registry (C1) for job/scheduler/event primitives.
type BrokerConfig struct {
	Addr     string `toml:"addr"`      // host:port, default "localhost:6379"
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	PoolSize int    `toml:"pool_size"`
}

type StorageConfig struct {
	SQLite SQLiteConfig `toml:"sqlite"`
}

// SQLiteConfig configures the relational store backing User/ApiKey/Webhook/Flow.
type SQLiteConfig struct {
	Path            string `toml:"path"`
	BusyTimeoutMS   int    `toml:"busy_timeout_ms"`
	CacheSizeMB     int    `toml:"cache_size_mb"`
	WALMode         bool   `toml:"wal_mode"`
	ResetOnStartup  bool   `toml:"reset_on_startup"`
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"`
}

// AuthConfig carries the JWT and password-reset token settings for C7.
type AuthConfig struct {
	TokenSecret            string `toml:"token_secret"`
	TokenExpiry            string `toml:"token_expiry"`             // e.g. "1800s"
	RefreshTokenSecret     string `toml:"refresh_token_secret"`
	RefreshTokenExpiry     string `toml:"refresh_token_expiry"`     // e.g. "7d"
	ResetTokenExpiry       string `toml:"reset_token_expiry"`       // e.g. "1h"
}

// WebhookConfig carries C6's per-attempt timeout and retry budget.
type WebhookConfig struct {
	RequestTimeout   string  `toml:"request_timeout"` // e.g. "10s"
	MaxRetries       int     `toml:"max_retries"`
	RetainCompleted  int     `toml:"retain_completed"`
	RetainFailed     int     `toml:"retain_failed"`
	RateLimitPerHost float64 `toml:"rate_limit_per_host"` // deliveries/sec to any one target host
}

// WebSocketConfig configures the push-channel hub.
type WebSocketConfig struct {
	PingInterval string `toml:"ping_interval"`
	WriteTimeout string `toml:"write_timeout"`
	ReadLimit    int64  `toml:"read_limit"`
}

// QueuesConfig is C1's immutable allow-list, loaded at startup.
type QueuesConfig struct {
	Allowed      []string `toml:"allowed"`
	WebhookQueue string   `toml:"webhook_queue"`
	SchedQueue   string   `toml:"sched_queue"`
}

// NewDefaultConfig creates a configuration with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 4000,
			Host: "localhost",
		},
		Broker: BrokerConfig{
			Addr:     "localhost:6379",
			PoolSize: 20,
		},
		Storage: StorageConfig{
			SQLite: SQLiteConfig{
				Path:          "./data/jobforge.db",
				BusyTimeoutMS: 5000,
				CacheSizeMB:   64,
				WALMode:       true,
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05.000",
		},
		Auth: AuthConfig{
			TokenExpiry:        "1800s",
			RefreshTokenExpiry: "7d",
			ResetTokenExpiry:   "1h",
		},
		Webhook: WebhookConfig{
			RequestTimeout:   "10s",
			MaxRetries:       3,
			RetainCompleted:  3,
			RetainFailed:     5,
			RateLimitPerHost: 5,
		},
		WebSocket: WebSocketConfig{
			PingInterval: "30s",
			WriteTimeout: "10s",
			ReadLimit:    1 << 20, // 1MB
		},
		Queues: QueuesConfig{
			Allowed:      []string{"jobQueue", "webhooks", "schedQueue"},
			WebhookQueue: "webhooks",
			SchedQueue:   "schedQueue",
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI.
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env -> CLI. Later files override
// earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
// Variable names follow §6's recognized options where the spec names
// one directly (PORT, TOKEN_SECRET, ...), and a JOBFORGE_ prefix for
// everything else the spec leaves to the ambient config layer.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("JOBFORGE_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("JOBFORGE_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if addr := os.Getenv("JOBFORGE_BROKER_ADDR"); addr != "" {
		config.Broker.Addr = addr
	}
	if password := os.Getenv("JOBFORGE_BROKER_PASSWORD"); password != "" {
		config.Broker.Password = password
	}
	if db := os.Getenv("JOBFORGE_BROKER_DB"); db != "" {
		if d, err := strconv.Atoi(db); err == nil {
			config.Broker.DB = d
		}
	}

	if path := os.Getenv("JOBFORGE_SQLITE_PATH"); path != "" {
		config.Storage.SQLite.Path = path
	}

	if level := os.Getenv("JOBFORGE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("JOBFORGE_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("JOBFORGE_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	if secret := os.Getenv("TOKEN_SECRET"); secret != "" {
		config.Auth.TokenSecret = secret
	}
	if expiry := os.Getenv("TOKEN_EXPIRY"); expiry != "" {
		config.Auth.TokenExpiry = expiry
	}
	if secret := os.Getenv("REFRESH_TOKEN_SECRET"); secret != "" {
		config.Auth.RefreshTokenSecret = secret
	}
	if expiry := os.Getenv("REFRESH_TOKEN_EXPIRY"); expiry != "" {
		config.Auth.RefreshTokenExpiry = expiry
	}

	if allowed := os.Getenv("JOBFORGE_QUEUES_ALLOWED"); allowed != "" {
		queues := []string{}
		for _, q := range strings.Split(allowed, ",") {
			if trimmed := strings.TrimSpace(q); trimmed != "" {
				queues = append(queues, trimmed)
			}
		}
		if len(queues) > 0 {
			config.Queues.Allowed = queues
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority).
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ValidateJobSchedule validates a cron schedule expression for the
// Scheduler Service (C3): the core validates the expression shape, the
// broker's own scheduler primitive still owns the actual repeat-firing
// (Non-goals: "implementing cron-expression parsing from scratch").
func ValidateJobSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// ParseDurationDefault parses a Go duration string, falling back to def
// on a parse error instead of propagating it, matching the teacher's
// log-and-continue posture for non-fatal config parsing. Accepts a "d"
// day suffix (e.g. "7d") in addition to time.ParseDuration's own units,
// since auth token expiries are naturally day-scale.
func ParseDurationDefault(s string, def time.Duration) time.Duration {
	if days, ok := strings.CutSuffix(strings.TrimSpace(s), "d"); ok {
		n, err := strconv.Atoi(days)
		if err == nil {
			return time.Duration(n) * 24 * time.Hour
		}
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// IsProduction reports whether the configured environment is "production".
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// QueueAllowed reports whether name is in the C1 allow-list
// (Queues.Allowed) or is the configured webhook or scheduler queue.
func (c *Config) QueueAllowed(name string) bool {
	for _, q := range c.Queues.Allowed {
		if q == name {
			return true
		}
	}
	return name == c.Queues.WebhookQueue || name == c.Queues.SchedQueue
}
