package db

import (
	"embed"

	"github.com/cockroachdb/errors"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrations embed.FS

// RunMigrations applies every pending embedded migration for the
// connection's backend.
func RunMigrations(conn Conn, logger *zap.SugaredLogger) error {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	var (
		dir     string
		name    string
		driver  database.Driver
		release func() error
		err     error
	)
	switch c := conn.(type) {
	case *Connection:
		dir, name = "migrations/postgres", "pgx5"
		driver, err = migratepgx.WithInstance(stdlib.OpenDBFromPool(c.Pool), &migratepgx.Config{})
		// Closing the driver returns its connection to the pool.
		release = driver.Close
	case *SQLite:
		dir, name = "migrations/sqlite", "sqlite3"
		driver, err = migratesqlite.WithInstance(c.DB, &migratesqlite.Config{})
		// The sqlite driver closes the shared handle on Close.
		release = func() error { return nil }
	default:
		return errors.Newf("migrations not supported for %T", conn)
	}
	if err != nil {
		return errors.Wrap(err, "failed to create migration driver")
	}
	defer func() {
		if err := release(); err != nil {
			logger.Warnw("Failed to release migration driver", "error", err)
		}
	}()

	source, err := iofs.New(migrations, dir)
	if err != nil {
		return errors.Wrap(err, "failed to read migrations")
	}
	defer source.Close()

	m, err := migrate.NewWithInstance("iofs", source, name, driver)
	if err != nil {
		return errors.Wrap(err, "failed to initialise migrations")
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "failed to apply migrations")
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return errors.Wrap(err, "failed to read migration version")
	}
	logger.Infow("Database schema up to date",
		"driver", conn.Driver(),
		"version", version,
		"dirty", dirty,
	)
	return nil
}
