package db

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Config holds database configuration
type Config struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	// Path is the database file used by the sqlite driver.
	Path string
}

// DSN renders the PostgreSQL connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Open connects to the configured backend.
func Open(ctx context.Context, config Config, logger *zap.SugaredLogger) (Conn, error) {
	switch config.Driver {
	case DriverPostgres, "":
		return NewConnection(ctx, config, logger)
	case DriverSQLite:
		return OpenSQLite(ctx, config.Path, logger)
	default:
		return nil, errors.Newf("unknown database driver %q", config.Driver)
	}
}

// Connection wraps the database connection pool
type Connection struct {
	Pool   *pgxpool.Pool
	logger *zap.SugaredLogger
}

// NewConnection creates a new database connection
func NewConnection(ctx context.Context, config Config, logger *zap.SugaredLogger) (*Connection, error) {
	return NewConnectionFromDSN(ctx, config.DSN(), logger)
}

// NewConnectionFromDSN creates a connection pool from a raw connection string.
func NewConnectionFromDSN(ctx context.Context, dsn string, logger *zap.SugaredLogger) (*Connection, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse database config")
	}

	// Configure pool settings - more conservative to avoid connection issues
	poolConfig.MaxConns = 5
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Minute * 30
	poolConfig.MaxConnIdleTime = time.Minute * 5
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create connection pool")
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	logger.Infow("Connected to PostgreSQL",
		"host", poolConfig.ConnConfig.Host,
		"database", poolConfig.ConnConfig.Database,
	)

	return &Connection{Pool: pool, logger: logger}, nil
}

// Driver reports the backend name.
func (c *Connection) Driver() string { return DriverPostgres }

// Ping checks the pool is reachable.
func (c *Connection) Ping(ctx context.Context) error {
	return c.Pool.Ping(ctx)
}

// Close closes the database connection pool
func (c *Connection) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
}

func (c *Connection) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return pgxQuerier{c.Pool}.Exec(ctx, query, args...)
}

func (c *Connection) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return pgxQuerier{c.Pool}.Query(ctx, query, args...)
}

func (c *Connection) QueryRow(ctx context.Context, query string, args ...any) Row {
	return pgxQuerier{c.Pool}.QueryRow(ctx, query, args...)
}

// WithTx executes a function within a database transaction
func (c *Connection) WithTx(ctx context.Context, fn func(Querier) error) error {
	return c.withTx(ctx, pgx.TxOptions{}, fn)
}

// WithReadTx executes fn in a read-only repeatable-read transaction so every
// statement sees the same snapshot.
func (c *Connection) WithReadTx(ctx context.Context, fn func(Querier) error) error {
	return c.withTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, fn)
}

func (c *Connection) withTx(ctx context.Context, opts pgx.TxOptions, fn func(Querier) error) error {
	tx, err := c.Pool.BeginTx(ctx, opts)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			if err := tx.Rollback(ctx); err != nil {
				c.logger.Errorw("Failed to rollback transaction", "error", err)
			}
			panic(p)
		}
	}()

	if err := fn(pgxQuerier{tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return errors.CombineErrors(err, errors.Wrap(rbErr, "rollback"))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}

	return nil
}

// pgxExecutor is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgxExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgxQuerier struct {
	q pgxExecutor
}

func (p pgxQuerier) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := p.q.Exec(ctx, rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (p pgxQuerier) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := p.q.Query(ctx, rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (p pgxQuerier) QueryRow(ctx context.Context, query string, args ...any) Row {
	return p.q.QueryRow(ctx, rebind(query), args...)
}

// DefaultConfig returns a default database configuration
func DefaultConfig() Config {
	return Config{
		Driver:   DriverPostgres,
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "admin",
		DBName:   "regwatch",
		SSLMode:  "disable",
		Path:     "regwatch.db",
	}
}
