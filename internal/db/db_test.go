package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRebind(t *testing.T) {
	cases := map[string]string{
		"SELECT 1":                              "SELECT 1",
		"SELECT * FROM t WHERE a = ? AND b = ?": "SELECT * FROM t WHERE a = $1 AND b = $2",
		"SELECT '?' , ? FROM t":                 "SELECT '?' , $1 FROM t",
		`SELECT "a?" FROM t WHERE x = ?`:        `SELECT "a?" FROM t WHERE x = $1`,
	}
	for input, expected := range cases {
		assert.Equal(t, expected, rebind(input), input)
	}
}

func TestNullDateScan(t *testing.T) {
	want := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	inputs := []any{
		time.Date(2024, 3, 5, 0, 0, 0, 0, time.FixedZone("X", 3600)),
		"2024-03-05 00:00:00+00:00",
		[]byte("2024-03-05"),
		"2024-03-05T00:00:00Z",
	}
	for _, input := range inputs {
		var d NullDate
		require.NoError(t, d.Scan(input), "%v", input)
		assert.True(t, d.Valid)
		assert.Equal(t, want, d.Time)
	}

	var d NullDate
	require.NoError(t, d.Scan(nil))
	assert.Nil(t, d.Ptr())

	assert.Error(t, d.Scan("not a date"))
	assert.Error(t, d.Scan(42))
}

func TestNullString(t *testing.T) {
	assert.Nil(t, NullString(""))
	assert.Equal(t, "x", NullString("x"))
	assert.Nil(t, NullTime(nil))
}

func TestSQLiteMigrateAndTransactions(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t).Sugar()

	conn, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	require.NoError(t, RunMigrations(conn, logger))
	// Re-running is a no-op.
	require.NoError(t, RunMigrations(conn, logger))

	insert := `INSERT INTO firms (id, external_id, name, valid_from) VALUES (?, ?, ?, ?)`
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	boom := errors.New("boom")
	err = conn.WithTx(ctx, func(q Querier) error {
		_, err := q.Exec(ctx, insert, "f-1", "ext-1", "Acme", day)
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, conn.QueryRow(ctx, `SELECT COUNT(*) FROM firms`).Scan(&count))
	assert.Zero(t, count, "rolled back insert must not be visible")

	require.NoError(t, conn.WithTx(ctx, func(q Querier) error {
		_, err := q.Exec(ctx, insert, "f-1", "ext-1", "Acme", day)
		return err
	}))

	var got NullDate
	require.NoError(t, conn.WithReadTx(ctx, func(q Querier) error {
		return q.QueryRow(ctx, `SELECT MAX(valid_from) FROM firms`).Scan(&got)
	}))
	assert.Equal(t, day, got.Time)

	// Intervals may be empty but never inverted.
	_, err = conn.Exec(ctx, `UPDATE firms SET valid_to = ? WHERE id = ?`, day.AddDate(0, 0, -1), "f-1")
	assert.Error(t, err)
	_, err = conn.Exec(ctx, `UPDATE firms SET valid_to = ? WHERE id = ?`, day, "f-1")
	assert.NoError(t, err)
}

func TestSQLiteReadsDoNotWaitForWriter(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t).Sugar()

	conn, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	require.NoError(t, RunMigrations(conn, logger))

	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	insert := `INSERT INTO firms (id, external_id, name, valid_from) VALUES (?, ?, ?, ?)`

	// The writer holds its lock until the concurrent read has finished.
	err = conn.WithTx(ctx, func(q Querier) error {
		if _, err := q.Exec(ctx, insert, "f-1", "ext-1", "Acme", day); err != nil {
			return err
		}
		start := time.Now()
		var count int
		readErr := conn.WithReadTx(ctx, func(r Querier) error {
			return r.QueryRow(ctx, `SELECT COUNT(*) FROM firms`).Scan(&count)
		})
		require.NoError(t, readErr)
		assert.Zero(t, count, "uncommitted rows are not visible to readers")
		assert.Less(t, time.Since(start), 2*time.Second)
		return nil
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, conn.WithReadTx(ctx, func(q Querier) error {
		return q.QueryRow(ctx, `SELECT COUNT(*) FROM firms`).Scan(&count)
	}))
	assert.Equal(t, 1, count)
}

func TestSQLiteRollbackOnCommitFailure(t *testing.T) {
	ctx := context.Background()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO firms").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	conn := NewSQLite(mockDB, zaptest.NewLogger(t).Sugar())
	err = conn.WithTx(ctx, func(q Querier) error {
		_, err := q.Exec(ctx, "INSERT INTO firms (id) VALUES (?)", "x")
		return err
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle"}, nil)
	assert.Error(t, err)
}
