package db

import (
	"context"
	"database/sql"
	"net/url"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// SQLite is a Conn backed by a local database file.
type SQLite struct {
	DB *sql.DB
	// reader serves WithReadTx. Its transactions take no lock until they
	// read, so they run alongside each other and alongside a writer.
	reader *sql.DB
	logger *zap.SugaredLogger
}

// OpenSQLite opens a SQLite database at the specified path. Write
// transactions take the database lock up front so concurrent writers queue on
// the busy timeout instead of failing mid-transaction. Read transactions use
// a second handle with deferred locking.
func OpenSQLite(ctx context.Context, path string, logger *zap.SugaredLogger) (*SQLite, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	logger.Debugw("Opening database", "path", path)

	params := url.Values{}
	params.Set("_txlock", "immediate")
	params.Set("_busy_timeout", "5000")
	params.Set("_foreign_keys", "on")
	params.Set("_journal_mode", "WAL")

	db, err := sql.Open("sqlite3", "file:"+path+"?"+params.Encode())
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to open database %s", path)
	}

	params.Set("_txlock", "deferred")
	params.Del("_journal_mode")
	reader, err := sql.Open("sqlite3", "file:"+path+"?"+params.Encode())
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to open read handle")
	}
	if err := reader.PingContext(ctx); err != nil {
		reader.Close()
		db.Close()
		return nil, errors.Wrapf(err, "failed to open read handle %s", path)
	}

	logger.Infow("Database opened successfully",
		"path", path,
		"wal_mode", true,
		"foreign_keys", true,
	)

	return &SQLite{DB: db, reader: reader, logger: logger}, nil
}

// NewSQLite wraps an existing handle, e.g. one created by go-sqlmock.
func NewSQLite(db *sql.DB, logger *zap.SugaredLogger) *SQLite {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SQLite{DB: db, reader: db, logger: logger}
}

// Driver reports the backend name.
func (s *SQLite) Driver() string { return DriverSQLite }

// Ping checks the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

// Close closes the database.
func (s *SQLite) Close() {
	if s.reader != nil && s.reader != s.DB {
		if err := s.reader.Close(); err != nil {
			s.logger.Warnw("Failed to close read handle", "error", err)
		}
	}
	if err := s.DB.Close(); err != nil {
		s.logger.Warnw("Failed to close database", "error", err)
	}
}

func (s *SQLite) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return sqlQuerier{s.DB}.Exec(ctx, query, args...)
}

func (s *SQLite) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return sqlQuerier{s.DB}.Query(ctx, query, args...)
}

func (s *SQLite) QueryRow(ctx context.Context, query string, args ...any) Row {
	return sqlQuerier{s.DB}.QueryRow(ctx, query, args...)
}

// WithTx executes a function within a database transaction.
func (s *SQLite) WithTx(ctx context.Context, fn func(Querier) error) error {
	return s.withTx(ctx, s.DB, fn)
}

// WithReadTx runs fn in a deferred transaction on the read handle. Readers
// see one snapshot and do not wait for each other or for a writer.
func (s *SQLite) WithReadTx(ctx context.Context, fn func(Querier) error) error {
	return s.withTx(ctx, s.reader, fn)
}

func (s *SQLite) withTx(ctx context.Context, handle *sql.DB, fn func(Querier) error) error {
	tx, err := handle.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			if err := tx.Rollback(); err != nil {
				s.logger.Errorw("Failed to rollback transaction", "error", err)
			}
			panic(p)
		}
	}()

	if err := fn(sqlQuerier{tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.CombineErrors(err, errors.Wrap(rbErr, "rollback"))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}

	return nil
}

// sqlExecutor is satisfied by both *sql.DB and *sql.Tx.
type sqlExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqlQuerier struct {
	q sqlExecutor
}

func (s sqlQuerier) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s sqlQuerier) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows}, nil
}

func (s sqlQuerier) QueryRow(ctx context.Context, query string, args ...any) Row {
	return s.q.QueryRowContext(ctx, query, args...)
}

type sqlRows struct {
	*sql.Rows
}

func (r sqlRows) Close() {
	_ = r.Rows.Close()
}
