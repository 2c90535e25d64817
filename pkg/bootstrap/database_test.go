package bootstrap

import (
	"context"
	"testing"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluxflag/internal/config"
	"fluxflag/internal/logger"
)

func newTestConnector() *DatabaseConnector {
	return NewDatabaseConnector(&config.Config{}, logger.NopLogger())
}

func TestInitPostgreSQLSkipsConnectionWhenAuditDisabled(t *testing.T) {
	dc := newTestConnector()
	db, err := dc.InitPostgreSQL(context.Background())
	require.NoError(t, err)
	assert.Nil(t, db)
}

func TestInitPostgreSQLWrapsPingFailureWhenAuditEnabled(t *testing.T) {
	dc := newTestConnector()
	dc.Config.Persistence.Audit.Enabled = true
	dc.Config.Persistence.Audit.Postgres = config.PostgresConfig{
		Host: "127.0.0.1", Port: 1, User: "flux", DBName: "fluxflag", SSLMode: "disable",
	}

	db, err := dc.InitPostgreSQL(context.Background())
	require.Error(t, err)
	assert.Nil(t, db)
	assert.Contains(t, err.Error(), "failed to ping database")
}

func TestInitRedisWrapsPingFailure(t *testing.T) {
	dc := newTestConnector()
	dc.Config.Persistence.Redis.Host = "127.0.0.1"
	dc.Config.Persistence.Redis.Port = 1

	client, err := dc.InitRedis(context.Background())
	require.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "failed to ping redis")
}

func TestShutdownDatabasesToleratesNilClients(t *testing.T) {
	dc := newTestConnector()
	errs := dc.ShutdownDatabases(nil, nil)
	assert.Empty(t, errs)
}
