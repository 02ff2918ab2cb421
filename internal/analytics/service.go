package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rpattn/regwatch/internal/db"
	"github.com/rpattn/regwatch/internal/domain"
	"github.com/rpattn/regwatch/internal/repository"
)

// Service answers register queries over one snapshot of the store.
type Service struct {
	store *repository.Store
}

// NewService creates the query service.
func NewService(store *repository.Store) *Service {
	return &Service{store: store}
}

func (s *Service) read(ctx context.Context, fn func(db.Querier) error) error {
	return s.store.Conn.WithReadTx(ctx, fn)
}

// Attorneys lists the attorneys registered on date.
func (s *Service) Attorneys(ctx context.Context, date time.Time, order domain.OrderBy, filter domain.Filter) ([]domain.AttorneyVersion, error) {
	var out []domain.AttorneyVersion
	err := s.read(ctx, func(q db.Querier) error {
		var err error
		out, err = Ranked(ctx, q, s.store.Attorneys, date, order, filter)
		return err
	})
	return out, err
}

// Firms lists the firms registered on date.
func (s *Service) Firms(ctx context.Context, date time.Time, order domain.OrderBy, filter domain.Filter) ([]domain.FirmVersion, error) {
	var out []domain.FirmVersion
	err := s.read(ctx, func(q db.Querier) error {
		var err error
		out, err = Ranked(ctx, q, s.store.Firms, date, order, filter)
		return err
	})
	return out, err
}

// Registrations lists attorneys newly registered in the window.
func (s *Service) Registrations(ctx context.Context, window domain.Window, filter domain.Filter) ([]domain.AttorneyVersion, error) {
	var out []domain.AttorneyVersion
	err := s.read(ctx, func(q db.Querier) error {
		var err error
		out, err = Registrations(ctx, q, s.store.Attorneys, window, filter)
		return err
	})
	return out, err
}

// Lapses lists attorneys that dropped off the register in the window.
func (s *Service) Lapses(ctx context.Context, window domain.Window, filter domain.Filter) ([]domain.AttorneyVersion, error) {
	var out []domain.AttorneyVersion
	err := s.read(ctx, func(q db.Querier) error {
		var err error
		out, err = Lapses(ctx, q, s.store.Attorneys, window, filter)
		return err
	})
	return out, err
}

// Movements lists attorneys that changed firm in the window.
func (s *Service) Movements(ctx context.Context, window domain.Window, filter domain.Filter) ([]domain.Movement[domain.Attorney], error) {
	var out []domain.Movement[domain.Attorney]
	err := s.read(ctx, func(q db.Querier) error {
		var err error
		out, err = Movements(ctx, q, s.store.Attorneys, window, filter)
		return err
	})
	return out, err
}

// AttorneyHistory returns every version of one attorney, oldest first, with
// the changes between them.
func (s *Service) AttorneyHistory(ctx context.Context, externalID string) ([]domain.HistoryEntry[domain.Attorney], error) {
	versions, err := s.store.Attorneys.History(ctx, s.store.Conn, externalID)
	if err != nil {
		return nil, err
	}
	return domain.DescribeHistory(versions), nil
}

// FirmHistory returns every row stored for one firm.
func (s *Service) FirmHistory(ctx context.Context, externalID string) ([]domain.HistoryEntry[domain.Firm], error) {
	versions, err := s.store.Firms.History(ctx, s.store.Conn, externalID)
	if err != nil {
		return nil, err
	}
	return domain.DescribeHistory(versions), nil
}

// FirmsByIDs resolves firm rows by surrogate key.
func (s *Service) FirmsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.FirmVersion, error) {
	versions, err := s.store.Firms.ByIDs(ctx, s.store.Conn, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]domain.FirmVersion, len(versions))
	for _, v := range versions {
		out[v.ID] = v
	}
	return out, nil
}

// OldestDate is the first date the register has data for.
func (s *Service) OldestDate(ctx context.Context) (time.Time, error) {
	return s.store.OldestDate(ctx)
}

// Runs lists recent reconciliation runs, newest first. An empty kind lists
// every kind.
func (s *Service) Runs(ctx context.Context, kind domain.Kind, limit int) ([]domain.ReconciliationRun, error) {
	return s.store.Runs.List(ctx, s.store.Conn, kind, limit)
}

// Ping checks the database connection.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Conn.Ping(ctx)
}
