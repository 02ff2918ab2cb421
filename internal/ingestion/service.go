// Package ingestion replays dated scrape archives into the attorney register.
package ingestion

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rpattn/regwatch/internal/domain"
	"github.com/rpattn/regwatch/internal/reconcile"
	"go.uber.org/zap"
)

// Service reconciles archive files through the attorney engine.
type Service struct {
	engine *reconcile.Engine[domain.Attorney]
	logger *zap.SugaredLogger
}

// NewService creates an ingestion service.
func NewService(engine *reconcile.Engine[domain.Attorney], logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{engine: engine, logger: logger}
}

// Request describes one snapshot upload.
type Request struct {
	FileName string
	Date     time.Time
	Data     io.Reader
}

// Summary reports the outcome of a directory import.
type Summary struct {
	Files   int                        `json:"files"`
	Skipped []string                   `json:"skipped"`
	Runs    []domain.ReconciliationRun `json:"runs"`
}

// Ingest parses one archive payload and reconciles it as of req.Date.
func (s *Service) Ingest(ctx context.Context, req Request) (domain.ReconciliationRun, error) {
	if req.Data == nil {
		return domain.ReconciliationRun{}, errors.New("data reader is required")
	}
	payload, err := io.ReadAll(req.Data)
	if err != nil {
		return domain.ReconciliationRun{}, errors.Wrap(err, "failed to read upload")
	}
	if len(payload) == 0 {
		return domain.ReconciliationRun{}, errors.Wrap(domain.ErrInvalidSnapshot, "file is empty")
	}

	records, err := ParseAttorneys(req.FileName, payload)
	if err != nil {
		return domain.ReconciliationRun{}, errors.Wrapf(err, "parse %s", req.FileName)
	}
	return s.engine.Reconcile(ctx, records, req.Date, req.FileName)
}

// ImportFile reconciles a single archive at the date in its name.
func (s *Service) ImportFile(ctx context.Context, file ArchiveFile) (domain.ReconciliationRun, error) {
	f, err := os.Open(file.Path)
	if err != nil {
		return domain.ReconciliationRun{}, errors.Wrapf(err, "open %s", file.Path)
	}
	defer f.Close()

	return s.Ingest(ctx, Request{FileName: file.Name(), Date: file.Date, Data: f})
}

// ImportDir replays every archive in dir in date order. Archives dated before
// data already in the register are skipped, so re-running an import over the
// same directory only applies new files.
func (s *Service) ImportDir(ctx context.Context, dir string) (Summary, error) {
	summary := Summary{Skipped: []string{}, Runs: []domain.ReconciliationRun{}}

	files, err := ListArchives(dir)
	if err != nil {
		return summary, err
	}

	last, err := s.engine.LastRun(ctx)
	if err != nil {
		return summary, err
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if last != nil && file.Date.Before(*last) {
			s.logger.Infow("skipping archive older than register", "file", file.Name())
			summary.Skipped = append(summary.Skipped, file.Name())
			continue
		}
		run, err := s.ImportFile(ctx, file)
		switch {
		case errors.Is(err, domain.ErrOutOfOrder):
			s.logger.Infow("skipping archive older than register", "file", file.Name())
			summary.Skipped = append(summary.Skipped, file.Name())
			continue
		case err != nil:
			return summary, err
		}
		summary.Files++
		summary.Runs = append(summary.Runs, run)
		s.logger.Infow("imported archive",
			"file", file.Name(),
			"closed", run.Closed,
			"inserted", run.Inserted,
			"unchanged", run.Unchanged,
		)
	}
	return summary, nil
}
