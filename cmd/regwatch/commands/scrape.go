package commands

import (
	"fmt"

	"github.com/rpattn/regwatch/internal/domain"
	"github.com/rpattn/regwatch/internal/ingestion"
	"github.com/rpattn/regwatch/internal/reconcile"
	"github.com/rpattn/regwatch/internal/scraper"
	"github.com/spf13/cobra"
)

var scrapeDateFlag string

// ScrapeCmd runs a single scrape of the register.
var ScrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape the register once",
	Long: `Fetch the live register and reconcile firms and attorneys as of a date.

Examples:
  regwatch scrape
  regwatch scrape --date 2024-03-01`,
	Args: cobra.NoArgs,
	RunE: withApp(runScrape),
}

// ImportCmd replays a directory of scrape archives.
var ImportCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Replay YYYY-MM-DD.csv/.xlsx archives in date order",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runImport),
}

func init() {
	ScrapeCmd.Flags().StringVar(&scrapeDateFlag, "date", "", "Reconciliation date (default today)")
}

func newScraper(a *app, attorneys *reconcile.Engine[domain.Attorney]) *scraper.Scraper {
	client := scraper.NewClient(a.cfg.Scraper.Endpoint, a.cfg.Scraper.Timeout)
	return scraper.New(client, a.store, attorneys, a.firmEngine(),
		scraper.WithArchiveDir(a.cfg.Scraper.ArchiveDir),
		scraper.WithLogger(a.logger),
		scraper.WithMetrics(a.metrics),
	)
}

func runScrape(cmd *cobra.Command, _ []string, a *app) error {
	date, err := dateFlag(scrapeDateFlag, domain.Today())
	if err != nil {
		return err
	}
	report, err := newScraper(a, a.attorneyEngine()).Run(cmd.Context(), date)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	w := newTable(out)
	row(w, "KIND", "CLOSED", "INSERTED", "UPDATED", "UNCHANGED")
	for _, run := range []domain.ReconciliationRun{report.Firms, report.Attorneys} {
		kind := string(run.Kind)
		if kind == "" {
			kind = "-"
		}
		row(w, kind, fmt.Sprint(run.Closed), fmt.Sprint(run.Inserted), fmt.Sprint(run.Updated), fmt.Sprint(run.Unchanged))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if report.Archive != "" {
		fmt.Fprintf(out, "Archived to %s\n", report.Archive)
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string, a *app) error {
	summary, err := ingestion.NewService(a.attorneyEngine(), a.logger).ImportDir(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Imported %d files, skipped %d\n", summary.Files, len(summary.Skipped))
	w := newTable(out)
	row(w, "AS OF", "SOURCE", "CLOSED", "INSERTED", "UNCHANGED")
	for _, run := range summary.Runs {
		row(w, run.AsOf.Format(domain.DateLayout), run.Source, fmt.Sprint(run.Closed), fmt.Sprint(run.Inserted), fmt.Sprint(run.Unchanged))
	}
	return w.Flush()
}
