package repository

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rpattn/regwatch/internal/db"
	"github.com/rpattn/regwatch/internal/domain"
)

// Runs records committed reconciliations.
type Runs struct{}

// Record stores a run. It is written inside the reconciliation transaction.
func (Runs) Record(ctx context.Context, q db.Querier, run domain.ReconciliationRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	_, err := q.Exec(ctx,
		`INSERT INTO reconciliation_runs (id, kind, as_of, source, closed, inserted, updated, unchanged, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		string(run.Kind),
		domain.Day(run.AsOf),
		run.Source,
		run.Closed,
		run.Inserted,
		run.Updated,
		run.Unchanged,
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
	)
	if err != nil {
		return errors.Wrap(err, "failed to record reconciliation run")
	}
	return nil
}

// List returns the most recent runs, newest first. A zero kind lists every
// kind.
func (Runs) List(ctx context.Context, q db.Querier, kind domain.Kind, limit int) ([]domain.ReconciliationRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, kind, as_of, source, closed, inserted, updated, unchanged, started_at, finished_at
		FROM reconciliation_runs`
	var args []any
	if kind != "" {
		query += " WHERE kind = ?"
		args = append(args, string(kind))
	}
	query += " ORDER BY as_of DESC, started_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list reconciliation runs")
	}
	defer rows.Close()

	runs := []domain.ReconciliationRun{}
	for rows.Next() {
		var (
			run     domain.ReconciliationRun
			runKind string
			asOf    db.NullDate
		)
		if err := rows.Scan(&run.ID, &runKind, &asOf, &run.Source, &run.Closed, &run.Inserted, &run.Updated, &run.Unchanged, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan reconciliation run")
		}
		run.Kind = domain.Kind(runKind)
		run.AsOf = asOf.Time
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read reconciliation runs")
	}
	return runs, nil
}

// LastAsOf returns the date of the latest run of kind, or nil when none ran.
func (Runs) LastAsOf(ctx context.Context, q db.Querier, kind domain.Kind) (*time.Time, error) {
	var last db.NullDate
	err := q.QueryRow(ctx, "SELECT MAX(as_of) FROM reconciliation_runs WHERE kind = ?", string(kind)).Scan(&last)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read last reconciliation date")
	}
	return last.Ptr(), nil
}

// RollbackSince removes runs on or after date.
func (Runs) RollbackSince(ctx context.Context, q db.Querier, date time.Time) (int64, error) {
	deleted, err := q.Exec(ctx, "DELETE FROM reconciliation_runs WHERE as_of >= ?", domain.Day(date))
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete reconciliation runs")
	}
	return deleted, nil
}
