package dbmanager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitechdev/ModelSpec/pkg/config"
)

func TestNewSettings(t *testing.T) {
	s, err := newSettings(config.DatabaseConfig{Type: "sqlite3", DSN: "file::memory:"})
	require.NoError(t, err)
	assert.Equal(t, DatabaseTypeSQLite, s.dbType)
	assert.Equal(t, ORMTypeBun, s.orm)
	assert.Equal(t, 1, s.maxOpenConns)
	assert.Equal(t, 10*time.Second, s.connectTimeout)

	s, err = newSettings(config.DatabaseConfig{Type: "PostgreSQL", ORM: "GORM", DSN: "postgres://x", MaxOpenConns: 7})
	require.NoError(t, err)
	assert.Equal(t, DatabaseTypePostgreSQL, s.dbType)
	assert.Equal(t, ORMTypeGORM, s.orm)
	assert.Equal(t, 7, s.maxOpenConns)
	assert.Equal(t, "pgx", s.dbType.driverName())

	_, err = newSettings(config.DatabaseConfig{Type: "oracle", DSN: "x"})
	assert.ErrorIs(t, err, ErrUnsupportedDatabase)
	var cfgErr *SettingError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "type", cfgErr.Key)

	_, err = newSettings(config.DatabaseConfig{Type: "mssql", ORM: "sqlx", DSN: "x"})
	assert.ErrorIs(t, err, ErrUnsupportedORM)

	_, err = newSettings(config.DatabaseConfig{Type: "mssql"})
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "dsn", cfgErr.Key)
	assert.ErrorIs(t, err, ErrMissingDSN)
}

func TestOpenSQLite(t *testing.T) {
	for _, orm := range []string{"bun", "gorm"} {
		t.Run(orm, func(t *testing.T) {
			ctx := context.Background()
			conn, err := Open(ctx, config.DatabaseConfig{Type: "sqlite", ORM: orm, DSN: "file::memory:"})
			require.NoError(t, err)

			assert.Equal(t, DatabaseTypeSQLite, conn.Type())
			assert.Equal(t, "sqlite", conn.Database().DriverName())
			require.NoError(t, conn.HealthCheck(ctx))

			_, err = conn.Database().Exec(ctx, "CREATE TABLE things (id INTEGER PRIMARY KEY, name TEXT)")
			require.NoError(t, err)
			_, err = conn.Database().Exec(ctx, "INSERT INTO things (name) VALUES (?)", "one")
			require.NoError(t, err)

			var count int
			require.NoError(t, conn.Native().QueryRowContext(ctx, "SELECT count(*) FROM things").Scan(&count))
			assert.Equal(t, 1, count)

			stats := conn.Stats()
			assert.True(t, stats.Connected)
			assert.True(t, stats.Healthy)
			assert.Equal(t, 1, stats.MaxOpenConnections)
			conn.PublishMetrics()

			require.NoError(t, conn.Close())
			require.NoError(t, conn.Close())
			assert.ErrorIs(t, conn.HealthCheck(ctx), ErrConnectionClosed)
			assert.False(t, conn.Stats().Connected)
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Second, calculateBackoff(1, time.Second, 10*time.Second))
	assert.Equal(t, 4*time.Second, calculateBackoff(2, time.Second, 10*time.Second))
	assert.Equal(t, 10*time.Second, calculateBackoff(5, time.Second, 10*time.Second))
}
