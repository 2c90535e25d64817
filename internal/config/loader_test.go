package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalYAML = `
server:
  port: 8080
  read_timeout_seconds: 30s
  write_timeout_seconds: 30s
retention:
  max_events: 5000
  max_age_days: 7
lifecycle:
  api_key: test-key
  base_url: https://example.com
  poll_interval: 1h
persistence:
  backend: memory
`

func TestLoadConfigParsesDurations(t *testing.T) {
	path := writeConfigFile(t, minimalYAML)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeoutSeconds)
	assert.Equal(t, time.Hour, cfg.Lifecycle.PollInterval)
	assert.Equal(t, "memory", cfg.Persistence.Backend)
}

func TestLoadConfigRejectsMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigRunsStaticValidation(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 999999
  read_timeout_seconds: 30s
  write_timeout_seconds: 30s
lifecycle:
  api_key: k
  base_url: https://example.com
persistence:
  backend: memory
`)
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigAppliesKafkaBrokersEnvOverride(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 8080
  read_timeout_seconds: 30s
  write_timeout_seconds: 30s
lifecycle:
  api_key: k
  base_url: https://example.com
persistence:
  backend: memory
telemetry:
  enabled: true
  kafka:
    brokers: ["placeholder:9092"]
    topic: events
`)
	t.Setenv("TELEMETRY_KAFKA_BROKERS", "broker-a:9092, broker-b:9092")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"broker-a:9092", "broker-b:9092"}, cfg.Telemetry.Kafka.Brokers)
}
