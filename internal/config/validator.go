package config

import (
	"fmt"
	"strings"

	"fluxflag/internal/constants"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errs []error

	if err := validateServer(cfg.Server); err != nil {
		errs = append(errs, err)
	}

	if err := validateRetention(cfg.Retention); err != nil {
		errs = append(errs, err)
	}

	if err := validateLifecycle(cfg.Lifecycle); err != nil {
		errs = append(errs, err)
	}

	if err := validatePersistence(cfg.Persistence); err != nil {
		errs = append(errs, err)
	}

	if err := validateTelemetry(cfg.Telemetry); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{Field: "server.read_timeout_seconds", Message: "read timeout must be positive"}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{Field: "server.write_timeout_seconds", Message: "write timeout must be positive"}
	}

	return nil
}

// validateRetention rejects out-of-range values rather than silently
// clamping: the runtime clamp happens once these values are passed
// through initialize(), but the daemon's own static config is expected
// to be valid up front.
func validateRetention(cfg RetentionConfig) error {
	if cfg.MaxEvents != 0 && (cfg.MaxEvents < constants.MinMaxEvents || cfg.MaxEvents > constants.MaxMaxEvents) {
		return &ValidationError{
			Field:   "retention.max_events",
			Message: fmt.Sprintf("max_events must be between %d and %d, got %d", constants.MinMaxEvents, constants.MaxMaxEvents, cfg.MaxEvents),
		}
	}

	if cfg.MaxAgeDays != 0 && (cfg.MaxAgeDays < constants.MinMaxAgeDays || cfg.MaxAgeDays > constants.MaxMaxAgeDays) {
		return &ValidationError{
			Field:   "retention.max_age_days",
			Message: fmt.Sprintf("max_age_days must be between %d and %d, got %d", constants.MinMaxAgeDays, constants.MaxMaxAgeDays, cfg.MaxAgeDays),
		}
	}

	return nil
}

func validateLifecycle(cfg LifecycleConfig) error {
	if cfg.LocalMode {
		if cfg.LocalRulesPath == "" {
			return &ValidationError{Field: "lifecycle.local_rules_path", Message: "local_rules_path is required when local_mode is enabled"}
		}
		return nil
	}

	if cfg.BaseURL == "" {
		return &ValidationError{Field: "lifecycle.base_url", Message: "base_url is required unless local_mode is enabled"}
	}

	if cfg.APIKey == "" {
		return &ValidationError{Field: "lifecycle.api_key", Message: "api_key is required unless local_mode is enabled"}
	}

	if cfg.PollInterval != 0 && cfg.PollInterval < constants.MinPollInterval {
		return &ValidationError{
			Field:   "lifecycle.poll_interval",
			Message: fmt.Sprintf("poll_interval must be at least %s, got %s", constants.MinPollInterval, cfg.PollInterval),
		}
	}

	return nil
}

func validatePersistence(cfg PersistenceConfig) error {
	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
	case "redis":
		if err := validateRedis(cfg.Redis); err != nil {
			return err
		}
	default:
		return &ValidationError{
			Field:   "persistence.backend",
			Message: fmt.Sprintf("unknown persistence backend: %s (supported: memory, redis)", cfg.Backend),
		}
	}

	if cfg.Audit.Enabled {
		if err := validatePostgres(cfg.Audit.Postgres); err != nil {
			return err
		}
	}

	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Host == "" {
		return &ValidationError{Field: "persistence.audit.postgres.host", Message: "PostgreSQL host is required"}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "persistence.audit.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.User == "" {
		return &ValidationError{Field: "persistence.audit.postgres.user", Message: "PostgreSQL user is required"}
	}

	if cfg.DBName == "" {
		return &ValidationError{Field: "persistence.audit.postgres.dbname", Message: "PostgreSQL database name is required"}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "persistence.audit.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s (valid: disable, allow, prefer, require, verify-ca, verify-full)", cfg.SSLMode),
		}
	}

	return nil
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Host == "" {
		return &ValidationError{Field: "persistence.redis.host", Message: "Redis host is required"}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "persistence.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.TTLSeconds < 0 {
		return &ValidationError{Field: "persistence.redis.ttl_seconds", Message: "TTL must be non-negative"}
	}

	return nil
}

func validateTelemetry(cfg TelemetryConfig) error {
	if !cfg.Enabled {
		return nil
	}

	if len(cfg.Kafka.Brokers) == 0 {
		return &ValidationError{Field: "telemetry.kafka.brokers", Message: "at least one Kafka broker is required when telemetry is enabled"}
	}

	if cfg.Kafka.Topic == "" {
		return &ValidationError{Field: "telemetry.kafka.topic", Message: "telemetry.kafka.topic is required when telemetry is enabled"}
	}

	return nil
}
