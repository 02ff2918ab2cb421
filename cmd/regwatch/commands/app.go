// Package commands implements the regwatch command line.
package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rpattn/regwatch/internal/config"
	"github.com/rpattn/regwatch/internal/db"
	"github.com/rpattn/regwatch/internal/domain"
	"github.com/rpattn/regwatch/internal/logger"
	"github.com/rpattn/regwatch/internal/metrics"
	"github.com/rpattn/regwatch/internal/reconcile"
	"github.com/rpattn/regwatch/internal/repository"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Global flags, bound by the root command.
var (
	ConfigPath string
	LogLevel   string
	LogJSON    bool
)

// app holds the collaborators shared by every command.
type app struct {
	cfg     config.Config
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
	store   *repository.Store
}

// openApp loads configuration, opens and migrates the database.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(ConfigPath)
	if err != nil {
		return nil, err
	}
	if LogLevel != "" {
		cfg.Log.Level = LogLevel
	}
	if LogJSON {
		cfg.Log.JSON = true
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	if cfg.Source != "" {
		log.Debugw("Loaded config", "file", cfg.Source)
	}

	conn, err := db.Open(ctx, cfg.Database, log)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if err := db.RunMigrations(conn, log); err != nil {
		conn.Close()
		return nil, err
	}

	return &app{
		cfg:     cfg,
		logger:  log,
		metrics: metrics.New(),
		store:   repository.NewStore(conn),
	}, nil
}

func (a *app) Close() {
	a.store.Conn.Close()
	_ = a.logger.Sync()
}

func (a *app) attorneyEngine() *reconcile.Engine[domain.Attorney] {
	return reconcile.NewEngine(a.store.Conn, a.store.Attorneys,
		reconcile.WithLogger[domain.Attorney](a.logger),
		reconcile.WithMetrics[domain.Attorney](a.metrics),
	)
}

func (a *app) firmEngine() *reconcile.Engine[domain.Firm] {
	return reconcile.NewEngine(a.store.Conn, a.store.Firms,
		reconcile.WithLogger[domain.Firm](a.logger),
		reconcile.WithMetrics[domain.Firm](a.metrics),
	)
}

// withApp adapts a command body that needs the app into a cobra RunE.
func withApp(run func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		return run(cmd, args, a)
	}
}

// parseKind accepts singular or plural entity names.
func parseKind(value string) (domain.Kind, error) {
	switch strings.TrimSuffix(strings.ToLower(value), "s") {
	case string(domain.KindAttorney):
		return domain.KindAttorney, nil
	case string(domain.KindFirm):
		return domain.KindFirm, nil
	}
	return "", errors.Wrapf(domain.ErrUnsupportedKind, "unknown kind %q", value)
}

// dateFlag parses an optional YYYY-MM-DD flag value.
func dateFlag(value string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return domain.Day(fallback), nil
	}
	return domain.ParseDate(value)
}

func windowFlags(first, last string) (domain.Window, error) {
	lastDate, err := dateFlag(last, domain.Today())
	if err != nil {
		return domain.Window{}, err
	}
	firstDate, err := dateFlag(first, domain.DefaultWindow(lastDate).First)
	if err != nil {
		return domain.Window{}, err
	}
	return domain.NewWindow(firstDate, lastDate)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func row(w io.Writer, cells ...string) {
	fmt.Fprintln(w, strings.Join(cells, "\t"))
}

func registeredAs(patents, trademarks bool) string {
	if s := domain.FormatRegisteredAs(patents, trademarks); s != "" {
		return s
	}
	return "-"
}

func validTo(p domain.Period) string {
	if p.ValidTo == nil {
		return "current"
	}
	return domain.FormatDate(p.ValidTo)
}
