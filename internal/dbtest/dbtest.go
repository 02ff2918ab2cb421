// Package dbtest opens migrated throwaway databases for tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rpattn/regwatch/internal/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// SQLite opens a migrated SQLite database in a temporary directory that is
// removed when the test ends.
func SQLite(t testing.TB) *db.SQLite {
	t.Helper()
	logger := zaptest.NewLogger(t).Sugar()

	conn, err := db.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "regwatch.db"), logger)
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	require.NoError(t, db.RunMigrations(conn, logger))
	return conn
}
