//go:build integration

package dbtest

import (
	"context"
	"testing"

	"github.com/rpattn/regwatch/internal/db"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap/zaptest"
)

// Postgres starts a disposable PostgreSQL container and returns a migrated
// connection to it. The container is terminated when the test ends.
func Postgres(t testing.TB) *db.Connection {
	t.Helper()
	ctx := context.Background()
	logger := zaptest.NewLogger(t).Sugar()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("regwatch"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	conn, err := db.NewConnectionFromDSN(ctx, dsn, logger)
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	require.NoError(t, db.RunMigrations(conn, logger))
	return conn
}
