package repository

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rpattn/regwatch/internal/db"
	"github.com/rpattn/regwatch/internal/domain"
)

// Store groups the tables of the register behind one connection.
type Store struct {
	Conn      db.Conn
	Attorneys *Table[domain.Attorney]
	Firms     *Table[domain.Firm]
	Runs      Runs
}

// NewStore wires the register tables onto conn.
func NewStore(conn db.Conn) *Store {
	return &Store{
		Conn:      conn,
		Attorneys: NewTable(AttorneySchema()),
		Firms:     NewTable(FirmSchema()),
	}
}

// RollbackReport summarises a rollback across every table.
type RollbackReport struct {
	Attorneys RollbackResult
	Firms     RollbackResult
	Runs      int64
}

// RollbackSince undoes every reconciliation on or after date in one
// transaction.
func (s *Store) RollbackSince(ctx context.Context, date time.Time) (RollbackReport, error) {
	var report RollbackReport
	err := s.Conn.WithTx(ctx, func(q db.Querier) error {
		var err error
		if report.Attorneys, err = s.Attorneys.RollbackSince(ctx, q, date); err != nil {
			return err
		}
		if report.Firms, err = s.Firms.RollbackSince(ctx, q, date); err != nil {
			return err
		}
		report.Runs, err = s.Runs.RollbackSince(ctx, q, date)
		return err
	})
	if err != nil {
		return RollbackReport{}, errors.Wrapf(err, "rollback since %s", date.Format(domain.DateLayout))
	}
	return report, nil
}

// PatchExternalID renames an identity of the given kind.
func (s *Store) PatchExternalID(ctx context.Context, kind domain.Kind, from, to string) (int64, error) {
	var affected int64
	err := s.Conn.WithTx(ctx, func(q db.Querier) error {
		var err error
		switch kind {
		case domain.KindAttorney:
			affected, err = s.Attorneys.PatchExternalID(ctx, q, from, to)
		case domain.KindFirm:
			affected, err = s.Firms.PatchExternalID(ctx, q, from, to)
		default:
			err = errors.Wrapf(domain.ErrUnsupportedKind, "kind %q", kind)
		}
		return err
	})
	return affected, err
}

// OldestDate is the earliest attorney valid_from, or today for an empty
// register.
func (s *Store) OldestDate(ctx context.Context) (time.Time, error) {
	bounds, err := s.Attorneys.Bounds(ctx, s.Conn)
	if err != nil {
		return time.Time{}, err
	}
	if bounds.Oldest == nil {
		return domain.Today(), nil
	}
	return *bounds.Oldest, nil
}
