package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/telhawk-systems/secmon/internal/errs"
	"github.com/telhawk-systems/secmon/internal/models"
)

// Config holds all configuration for the secmon service.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Scorer   ScorerConfig   `mapstructure:"scorer"`
	Window   WindowConfig   `mapstructure:"window"`
	Rules    RulesConfig    `mapstructure:"rules"`
	Dedup    DedupConfig    `mapstructure:"dedup"`
	Router   RouterConfig   `mapstructure:"router"`
	Channels ChannelsConfig `mapstructure:"channels"`
	Database DatabaseConfig `mapstructure:"database"`
	Bus      BusConfig      `mapstructure:"bus"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ScorerConfig holds threat scorer tuning. Weights map event types to score
// increments; HalfLife controls exponential decay.
type ScorerConfig struct {
	Weights  map[string]float64 `mapstructure:"weights"`
	HalfLife time.Duration      `mapstructure:"half_life"`
}

// WindowConfig holds the shared event ring buffer settings.
type WindowConfig struct {
	Capacity  int           `mapstructure:"capacity"`
	Retention time.Duration `mapstructure:"retention"`
}

// RulesConfig holds rule engine settings. File optionally points to a YAML
// rule set; when empty the built-in default rules are used.
type RulesConfig struct {
	File         string        `mapstructure:"file"`
	EvalMode     string        `mapstructure:"eval_mode"`
	EvalInterval time.Duration `mapstructure:"eval_interval"`
}

// DedupConfig holds alert deduplication settings.
type DedupConfig struct {
	Backend       string        `mapstructure:"backend"`
	Window        time.Duration `mapstructure:"window"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	RedisURL      string        `mapstructure:"redis_url"`
}

// RouterConfig holds alert dispatch settings.
type RouterConfig struct {
	QueueSize      int                 `mapstructure:"queue_size"`
	Workers        int                 `mapstructure:"workers"`
	RetryCount     int                 `mapstructure:"retry_count"`
	AttemptTimeout time.Duration       `mapstructure:"attempt_timeout"`
	BackoffBase    time.Duration       `mapstructure:"backoff_base"`
	Routes         map[string][]string `mapstructure:"routes"`
}

// ChannelsConfig holds per-channel endpoints and credentials.
type ChannelsConfig struct {
	Slack     SlackConfig     `mapstructure:"slack"`
	Email     EmailConfig     `mapstructure:"email"`
	PagerDuty PagerDutyConfig `mapstructure:"pagerduty"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
}

// SlackConfig holds the Slack incoming-webhook endpoint.
type SlackConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
}

// EmailConfig holds the HTTP mail relay endpoint and addressing.
type EmailConfig struct {
	RelayURL string `mapstructure:"relay_url"`
	From     string `mapstructure:"from"`
	To       string `mapstructure:"to"`
}

// PagerDutyConfig holds the PagerDuty Events API endpoint and routing key.
type PagerDutyConfig struct {
	URL        string `mapstructure:"url"`
	RoutingKey string `mapstructure:"routing_key"`
}

// WebhookConfig holds the generic catch-all webhook endpoint.
type WebhookConfig struct {
	URL string `mapstructure:"url"`
}

// DatabaseConfig holds the optional PostgreSQL alert archive settings.
type DatabaseConfig struct {
	Enabled        bool           `mapstructure:"enabled"`
	MigrationsPath string         `mapstructure:"migrations_path"`
	Postgres       PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnString builds a PostgreSQL connection string.
func (p PostgresConfig) ConnString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode,
	)
}

// BusConfig holds the optional NATS alert publisher settings.
type BusConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// MonitorConfig holds orchestrator settings.
type MonitorConfig struct {
	ClockSkew time.Duration `mapstructure:"clock_skew"`
}

// Evaluation modes for the rule engine.
const (
	EvalModeTick     = "tick"
	EvalModePerEvent = "per_event"
)

// Deduplicator backends.
const (
	DedupBackendMemory = "memory"
	DedupBackendRedis  = "redis"
)

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 8086)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scorer.half_life", "10m")
	v.SetDefault("scorer.weights", map[string]float64{
		string(models.EventLoginFailed):        2,
		string(models.EventInjectionAttempt):   15,
		string(models.EventSuspiciousActivity): 8,
		string(models.EventRateLimitExceeded):  5,
		string(models.EventAccessDenied):       3,
		string(models.EventSystemError):        1,
	})

	v.SetDefault("window.capacity", 4096)
	v.SetDefault("window.retention", "10m")

	v.SetDefault("rules.file", "")
	v.SetDefault("rules.eval_mode", EvalModeTick)
	v.SetDefault("rules.eval_interval", "30s")

	v.SetDefault("dedup.backend", DedupBackendMemory)
	v.SetDefault("dedup.window", "5m")
	v.SetDefault("dedup.sweep_interval", "1m")
	v.SetDefault("dedup.redis_url", "redis://localhost:6379/0")

	v.SetDefault("router.queue_size", 256)
	v.SetDefault("router.workers", 4)
	v.SetDefault("router.retry_count", 3)
	v.SetDefault("router.attempt_timeout", "5s")
	v.SetDefault("router.backoff_base", "200ms")
	v.SetDefault("router.routes", map[string][]string{
		string(models.SeverityCritical): {"slack", "email", "pagerduty", "webhook"},
		string(models.SeverityHigh):     {"slack", "email", "webhook"},
		string(models.SeverityMedium):   {"slack", "webhook"},
		string(models.SeverityLow):      {"webhook"},
		string(models.SeverityInfo):     {"webhook"},
	})

	v.SetDefault("channels.slack.webhook_url", "")
	v.SetDefault("channels.email.relay_url", "")
	v.SetDefault("channels.email.from", "secmon@localhost")
	v.SetDefault("channels.email.to", "security@localhost")
	v.SetDefault("channels.pagerduty.url", "https://events.pagerduty.com/v2/enqueue")
	v.SetDefault("channels.pagerduty.routing_key", "")
	v.SetDefault("channels.webhook.url", "")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.migrations_path", "migrations")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "secmon")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "secmon")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("bus.enabled", false)
	v.SetDefault("bus.url", "nats://localhost:4222")
	v.SetDefault("bus.subject_prefix", "secmon.alerts")

	v.SetDefault("monitor.clock_skew", "30s")

	// Read from config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables override file config
	v.SetEnvPrefix("SECMON")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks configuration invariants. Any violation is a
// ConfigurationError and fatal at startup.
func (c *Config) Validate() error {
	if c.Scorer.HalfLife <= 0 {
		return &errs.ConfigurationError{Key: "scorer.half_life", Err: fmt.Errorf("must be positive, got %s", c.Scorer.HalfLife)}
	}
	for eventType, weight := range c.Scorer.Weights {
		if weight < 0 {
			return &errs.ConfigurationError{Key: "scorer.weights." + eventType, Err: fmt.Errorf("must be non-negative, got %f", weight)}
		}
	}
	if c.Window.Capacity <= 0 {
		return &errs.ConfigurationError{Key: "window.capacity", Err: fmt.Errorf("must be positive, got %d", c.Window.Capacity)}
	}
	if c.Window.Retention <= 0 {
		return &errs.ConfigurationError{Key: "window.retention", Err: fmt.Errorf("must be positive, got %s", c.Window.Retention)}
	}
	if c.Rules.EvalMode != EvalModeTick && c.Rules.EvalMode != EvalModePerEvent {
		return &errs.ConfigurationError{Key: "rules.eval_mode", Err: fmt.Errorf("must be %q or %q, got %q", EvalModeTick, EvalModePerEvent, c.Rules.EvalMode)}
	}
	if c.Rules.EvalMode == EvalModeTick && c.Rules.EvalInterval <= 0 {
		return &errs.ConfigurationError{Key: "rules.eval_interval", Err: fmt.Errorf("must be positive, got %s", c.Rules.EvalInterval)}
	}
	if c.Dedup.Backend != DedupBackendMemory && c.Dedup.Backend != DedupBackendRedis {
		return &errs.ConfigurationError{Key: "dedup.backend", Err: fmt.Errorf("must be %q or %q, got %q", DedupBackendMemory, DedupBackendRedis, c.Dedup.Backend)}
	}
	if c.Dedup.Window <= 0 {
		return &errs.ConfigurationError{Key: "dedup.window", Err: fmt.Errorf("must be positive, got %s", c.Dedup.Window)}
	}
	if c.Router.QueueSize <= 0 {
		return &errs.ConfigurationError{Key: "router.queue_size", Err: fmt.Errorf("must be positive, got %d", c.Router.QueueSize)}
	}
	if c.Router.Workers <= 0 {
		return &errs.ConfigurationError{Key: "router.workers", Err: fmt.Errorf("must be positive, got %d", c.Router.Workers)}
	}
	if c.Router.RetryCount < 1 {
		return &errs.ConfigurationError{Key: "router.retry_count", Err: fmt.Errorf("must be at least 1, got %d", c.Router.RetryCount)}
	}
	if c.Router.AttemptTimeout <= 0 {
		return &errs.ConfigurationError{Key: "router.attempt_timeout", Err: fmt.Errorf("must be positive, got %s", c.Router.AttemptTimeout)}
	}
	for severity := range c.Router.Routes {
		if !models.ValidSeverity(models.Severity(severity)) {
			return &errs.ConfigurationError{Key: "router.routes", Err: fmt.Errorf("unknown severity %q", severity)}
		}
	}
	if c.Monitor.ClockSkew < 0 {
		return &errs.ConfigurationError{Key: "monitor.clock_skew", Err: fmt.Errorf("must be non-negative, got %s", c.Monitor.ClockSkew)}
	}
	return nil
}
