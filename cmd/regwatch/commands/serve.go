package commands

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rpattn/regwatch/internal/analytics"
	"github.com/rpattn/regwatch/internal/api"
	"github.com/rpattn/regwatch/internal/export"
	"github.com/rpattn/regwatch/internal/ingestion"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveAddrFlag string

// ServeCmd runs the HTTP API and, when an interval is configured, the
// scheduled scraper.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the register API",
	Long: `Serve the register over HTTP and scrape it on the configured interval.

Examples:
  regwatch serve
  regwatch serve --addr :9000`,
	Args: cobra.NoArgs,
	RunE: withApp(runServe),
}

func init() {
	ServeCmd.Flags().StringVar(&serveAddrFlag, "addr", "", "Listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, _ []string, a *app) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := a.cfg.Server.Addr
	if serveAddrFlag != "" {
		addr = serveAddrFlag
	}

	attorneys := a.attorneyEngine()
	router := api.NewRouter(api.Deps{
		Service:     analytics.NewService(a.store),
		Import:      ingestion.NewHTTPHandler(ingestion.NewService(attorneys, a.logger)),
		Export:      export.NewHTTPHandler(export.NewService(a.store, a.logger)),
		Metrics:     a.metrics,
		Logger:      a.logger,
		CORSOrigins: a.cfg.Server.CORSOrigins,
	})

	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Infow("Starting server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "failed to start server")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		a.logger.Infow("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if interval := a.cfg.Scraper.Interval; interval > 0 {
		s := newScraper(a, attorneys)
		g.Go(func() error {
			a.logger.Infow("Scheduled scraping", "interval", interval)
			return s.Loop(ctx, interval)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Infow("Server exited")
	return nil
}
