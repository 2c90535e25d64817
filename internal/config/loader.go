package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func bindEnvVariables() {
	viper.BindEnv("lifecycle.api_key", "LIFECYCLE_API_KEY")
	viper.BindEnv("lifecycle.base_url", "LIFECYCLE_BASE_URL")
	viper.BindEnv("lifecycle.poll_interval", "LIFECYCLE_POLL_INTERVAL")
	viper.BindEnv("lifecycle.local_mode", "LIFECYCLE_LOCAL_MODE")

	viper.BindEnv("persistence.backend", "PERSISTENCE_BACKEND")
	viper.BindEnv("persistence.redis.host", "PERSISTENCE_REDIS_HOST")
	viper.BindEnv("persistence.redis.port", "PERSISTENCE_REDIS_PORT")
	viper.BindEnv("persistence.redis.password", "PERSISTENCE_REDIS_PASSWORD")
	viper.BindEnv("persistence.redis.db", "PERSISTENCE_REDIS_DB")

	viper.BindEnv("persistence.audit.enabled", "PERSISTENCE_AUDIT_ENABLED")
	viper.BindEnv("persistence.audit.postgres.host", "PERSISTENCE_AUDIT_POSTGRES_HOST")
	viper.BindEnv("persistence.audit.postgres.port", "PERSISTENCE_AUDIT_POSTGRES_PORT")
	viper.BindEnv("persistence.audit.postgres.user", "PERSISTENCE_AUDIT_POSTGRES_USER")
	viper.BindEnv("persistence.audit.postgres.password", "PERSISTENCE_AUDIT_POSTGRES_PASSWORD")
	viper.BindEnv("persistence.audit.postgres.dbname", "PERSISTENCE_AUDIT_POSTGRES_DBNAME")
	viper.BindEnv("persistence.audit.postgres.sslmode", "PERSISTENCE_AUDIT_POSTGRES_SSLMODE")

	viper.BindEnv("telemetry.enabled", "TELEMETRY_ENABLED")
	viper.BindEnv("telemetry.kafka.brokers", "TELEMETRY_KAFKA_BROKERS")
	viper.BindEnv("telemetry.kafka.topic", "TELEMETRY_KAFKA_TOPIC")

	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout_seconds", "SERVER_READ_TIMEOUT_SECONDS")
	viper.BindEnv("server.write_timeout_seconds", "SERVER_WRITE_TIMEOUT_SECONDS")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
}

func applyEnvOverrides(cfg *Config) error {
	if brokersEnv := viper.GetString("TELEMETRY_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Telemetry.Kafka.Brokers = brokers
		}
	}

	if otlpEndpoint := viper.GetString("TRACING_OTLP_ENDPOINT"); otlpEndpoint != "" {
		cfg.Tracing.OTLP.Endpoint = otlpEndpoint
	}

	return nil
}
