package config

import (
	"time"
)

// Config is the root configuration for the fluxflagd daemon: the admin
// HTTP surface, the rule lifecycle (fetch/poll), the persistence
// backend for the event log and cached rule set, the audit trail, and
// the schema-discovery telemetry sink.
type Config struct {
	Server         ServerConfig
	Retention      RetentionConfig
	Lifecycle      LifecycleConfig
	Persistence    PersistenceConfig
	Telemetry      TelemetryConfig
	Logging        LoggingConfig
	AdminRateLimit RateLimitConfig
	CircuitBreaker CircuitBreakerConfig
	Tracing        TracingConfig
}

type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
}

// RetentionConfig bounds the in-memory event log.
type RetentionConfig struct {
	MaxEvents  int `mapstructure:"max_events"`
	MaxAgeDays int `mapstructure:"max_age_days"`
}

// LifecycleConfig drives the rule fetch/poll loop.
type LifecycleConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout"`
	LocalMode       bool          `mapstructure:"local_mode"`
	LocalRulesPath  string        `mapstructure:"local_rules_path"`
}

type PersistenceConfig struct {
	// Backend selects the KV store implementation: "memory", "redis".
	Backend string       `mapstructure:"backend"`
	Redis   RedisConfig  `mapstructure:"redis"`
	Audit   AuditConfig  `mapstructure:"audit"`
}

// AuditConfig configures the Postgres-backed install-history trail.
type AuditConfig struct {
	Enabled       bool            `mapstructure:"enabled"`
	Postgres      PostgresConfig  `mapstructure:"postgres"`
	RunMigrations bool            `mapstructure:"run_migrations"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

// TelemetryConfig configures the schema-discovery reporter: it reports
// observed event and property names upstream so operators can build
// rules against them. The sink is Kafka when enabled, a no-op
// otherwise.
type TelemetryConfig struct {
	Enabled bool        `mapstructure:"enabled"`
	Kafka   KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers []string    `mapstructure:"brokers"`
	Topic   string      `mapstructure:"topic"`
	Retry   RetryConfig `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
