// Package scraper fetches the public register and reconciles it into the store.
package scraper

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rpattn/regwatch/internal/domain"
	"github.com/rpattn/regwatch/internal/ingestion"
	"github.com/rpattn/regwatch/internal/metrics"
	"github.com/rpattn/regwatch/internal/reconcile"
	"github.com/rpattn/regwatch/internal/repository"
	"go.uber.org/zap"
)

// Source identifies scrape runs in the reconciliation log.
const Source = "scrape"

// Fetcher returns the raw search results of the register.
type Fetcher interface {
	FetchAll(ctx context.Context) ([]Result, error)
}

// Snapshot is one parsed scrape.
type Snapshot struct {
	Attorneys []domain.Record[domain.Attorney]
	Firms     []domain.Record[domain.Firm]
}

// Report summarises one scrape cycle.
type Report struct {
	Date      time.Time                `json:"date"`
	Attorneys domain.ReconciliationRun `json:"attorneys"`
	Firms     domain.ReconciliationRun `json:"firms"`
	Archive   string                   `json:"archive,omitempty"`
}

// Split parses result cards and sorts them into attorneys and firms. Cards
// carrying neither an attorney nor a firm label are dropped.
func Split(results []Result) Snapshot {
	var snap Snapshot
	for _, result := range results {
		fields := ParseHTML(DeleteControlChars(result.HTML))
		patents, trademarks := domain.ParseRegisteredAs(fields[LabelRegisteredAs])
		id := strings.TrimSpace(result.ID)

		if name, ok := fields[LabelAttorney]; ok {
			snap.Attorneys = append(snap.Attorneys, domain.Record[domain.Attorney]{
				ExternalID: id,
				Attrs: domain.Attorney{
					Name:       name,
					Phone:      fields[LabelPhone],
					Email:      fields[LabelEmail],
					Firm:       fields[LabelFirm],
					Address:    fields[LabelAddress],
					Patents:    patents,
					Trademarks: trademarks,
				},
			})
			continue
		}
		if name, ok := fields[LabelFirm]; ok {
			snap.Firms = append(snap.Firms, domain.Record[domain.Firm]{
				ExternalID: id,
				Attrs: domain.Firm{
					Name:       name,
					Phone:      fields[LabelPhone],
					Email:      fields[LabelEmail],
					Website:    fields[LabelWebsite],
					Directors:  fields[LabelDirectors],
					Address:    fields[LabelAddress],
					Patents:    patents,
					Trademarks: trademarks,
				},
			})
		}
	}
	return snap
}

// LinkFirms points every attorney at the firm whose name matches its firm
// text, ignoring case. Unmatched attorneys keep no reference.
func LinkFirms(attorneys []domain.Record[domain.Attorney], firms []domain.FirmVersion) {
	byName := make(map[string]uuid.UUID, len(firms))
	for _, f := range firms {
		byName[strings.ToLower(strings.TrimSpace(f.Attrs.Name))] = f.ID
	}
	for i := range attorneys {
		attorneys[i].Attrs.FirmID = nil
		if id, ok := byName[strings.ToLower(strings.TrimSpace(attorneys[i].Attrs.Firm))]; ok && attorneys[i].Attrs.Firm != "" {
			attorneys[i].Attrs.FirmID = &id
		}
	}
}

// Scraper runs scrape cycles.
type Scraper struct {
	fetcher    Fetcher
	store      *repository.Store
	attorneys  *reconcile.Engine[domain.Attorney]
	firms      *reconcile.Engine[domain.Firm]
	archiveDir string
	logger     *zap.SugaredLogger
	metrics    *metrics.Metrics
}

// Option customises a Scraper.
type Option func(*Scraper)

// WithArchiveDir keeps a dated CSV copy of every scraped attorney snapshot.
func WithArchiveDir(dir string) Option {
	return func(s *Scraper) { s.archiveDir = dir }
}

// WithLogger sets the scraper logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(s *Scraper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records scrape metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scraper) { s.metrics = m }
}

// New creates a scraper writing through the given engines.
func New(fetcher Fetcher, store *repository.Store, attorneys *reconcile.Engine[domain.Attorney], firms *reconcile.Engine[domain.Firm], opts ...Option) *Scraper {
	s := &Scraper{
		fetcher:   fetcher,
		store:     store,
		attorneys: attorneys,
		firms:     firms,
		logger:    zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run fetches the register and reconciles it as of date. Firms are
// reconciled first so attorneys can reference them.
func (s *Scraper) Run(ctx context.Context, date time.Time) (Report, error) {
	report, err := s.run(ctx, domain.Day(date))
	if err != nil {
		s.metrics.IncrementScrapeFailure()
		s.logger.Errorw("Scrape failed", "date", date.Format(domain.DateLayout), "error", err)
		return report, err
	}
	return report, nil
}

func (s *Scraper) run(ctx context.Context, date time.Time) (Report, error) {
	report := Report{Date: date}

	results, err := s.fetcher.FetchAll(ctx)
	if err != nil {
		return report, errors.Wrap(err, "fetch register")
	}
	snap := Split(results)
	s.metrics.SetScrapeRecords(string(domain.KindAttorney), len(snap.Attorneys))
	s.metrics.SetScrapeRecords(string(domain.KindFirm), len(snap.Firms))
	s.logger.Infow("Fetched register",
		"results", len(results),
		"attorneys", len(snap.Attorneys),
		"firms", len(snap.Firms),
	)

	if len(snap.Firms) > 0 {
		report.Firms, err = s.firms.Reconcile(ctx, snap.Firms, date, Source)
		if err != nil {
			return report, err
		}
	}

	current, err := s.store.Firms.Current(ctx, s.store.Conn)
	if err != nil {
		return report, errors.Wrap(err, "load firms")
	}
	LinkFirms(snap.Attorneys, current)

	report.Attorneys, err = s.attorneys.Reconcile(ctx, snap.Attorneys, date, Source)
	if err != nil {
		return report, err
	}

	if s.archiveDir != "" {
		report.Archive, err = ingestion.WriteArchive(s.archiveDir, date, snap.Attorneys)
		if err != nil {
			return report, errors.Wrap(err, "archive snapshot")
		}
	}
	return report, nil
}

// Loop runs a scrape every interval until ctx is cancelled. A failed cycle is
// logged and retried on the next tick.
func (s *Scraper) Loop(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.Newf("invalid scrape interval %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_, _ = s.Run(ctx, domain.Today())
		}
	}
}
