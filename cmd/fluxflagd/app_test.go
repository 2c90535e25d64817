package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluxflag/internal/config"
	"fluxflag/internal/logger"
)

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	return NewApp(cfg, logger.NopLogger())
}

func TestInitStoresIsNoopForMemoryBackendWithoutAudit(t *testing.T) {
	cfg := &config.Config{Persistence: config.PersistenceConfig{Backend: "memory"}}
	a := newTestApp(t, cfg)

	require.NoError(t, a.initStores(context.Background()))
	assert.Nil(t, a.redisClient)
	assert.Nil(t, a.postgresDB)
}

func TestInitEngineInLocalModeInstallsRulesFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"features":{"welcome_banner":[{"value":"on","conditions":{}}]}}`), 0o600))

	cfg := &config.Config{
		Persistence: config.PersistenceConfig{Backend: "memory"},
		Lifecycle:   config.LifecycleConfig{LocalMode: true, LocalRulesPath: path},
	}
	a := newTestApp(t, cfg)
	require.NoError(t, a.initStores(context.Background()))
	require.NoError(t, a.initEngine(context.Background()))

	t.Cleanup(func() { a.engine.Shutdown(context.Background()) })

	value, ok := a.engine.GetFeatureValue("welcome_banner")
	require.True(t, ok)
	assert.Equal(t, "on", value)
}

func TestInitRouterRegistersHealthAndMetricsEndpoints(t *testing.T) {
	cfg := &config.Config{Persistence: config.PersistenceConfig{Backend: "memory"}}
	a := newTestApp(t, cfg)
	require.NoError(t, a.initRouter())

	assert.NotNil(t, a.router)

	routes := a.router.Routes()
	var hasHealth, hasMetrics bool
	for _, r := range routes {
		if r.Path == "/health" {
			hasHealth = true
		}
		if r.Path == "/metrics" {
			hasMetrics = true
		}
	}
	assert.True(t, hasHealth)
	assert.True(t, hasMetrics)
}

func TestInitServerUsesConfiguredPortAndTimeouts(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{Port: 9191, ReadTimeoutSeconds: 15 * time.Second, WriteTimeoutSeconds: 20 * time.Second},
	}
	a := newTestApp(t, cfg)
	require.NoError(t, a.initRouter())
	require.NoError(t, a.initServer())

	assert.Equal(t, ":9191", a.server.Addr)
	assert.Equal(t, 15*time.Second, a.server.ReadTimeout)
	assert.Equal(t, 20*time.Second, a.server.WriteTimeout)
}

func TestShutdownToleratesNilComponents(t *testing.T) {
	cfg := &config.Config{}
	a := newTestApp(t, cfg)
	require.NoError(t, a.Shutdown(context.Background()))
}
