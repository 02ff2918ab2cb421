package reconcile

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/rpattn/regwatch/internal/db"
	"github.com/rpattn/regwatch/internal/domain"
	"github.com/rpattn/regwatch/internal/metrics"
	"github.com/rpattn/regwatch/internal/repository"
	"go.uber.org/zap"
)

// Engine reconciles snapshots of one entity kind.
type Engine[A any] struct {
	conn    db.Conn
	table   *repository.Table[A]
	runs    repository.Runs
	policy  Policy[A]
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

// Option customises an Engine.
type Option[A any] func(*Engine[A])

// WithLogger sets the logger used for data-quality warnings.
func WithLogger[A any](logger *zap.SugaredLogger) Option[A] {
	return func(e *Engine[A]) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics records reconciliation metrics.
func WithMetrics[A any](m *metrics.Metrics) Option[A] {
	return func(e *Engine[A]) { e.metrics = m }
}

// NewEngine creates an engine writing through table on conn.
func NewEngine[A any](conn db.Conn, table *repository.Table[A], opts ...Option[A]) *Engine[A] {
	e := &Engine[A]{
		conn:   conn,
		table:  table,
		policy: PolicyFor(table.Schema()),
		logger: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the engine's write strategy.
func (e *Engine[A]) Policy() Policy[A] {
	return e.policy
}

// LastRun returns the date of the latest recorded run, or nil when none ran.
func (e *Engine[A]) LastRun(ctx context.Context) (*time.Time, error) {
	return e.runs.LastAsOf(ctx, e.conn, e.table.Schema().Kind)
}

// Reconcile makes the store agree with snapshot as of asOf. All writes land in
// one transaction; on any error nothing is written. A snapshot identical to
// the stored state writes nothing, not even a run record.
//
// A snapshot is otherwise taken as the whole truth: every open identity it
// omits is closed on asOf. The exception is an empty snapshot, which is
// rejected with ErrInvalidSnapshot instead of closing the whole register.
func (e *Engine[A]) Reconcile(ctx context.Context, snapshot []domain.Record[A], asOf time.Time, source string) (domain.ReconciliationRun, error) {
	schema := e.table.Schema()
	asOf = domain.Day(asOf)
	run := domain.ReconciliationRun{
		Kind:      schema.Kind,
		AsOf:      asOf,
		Source:    source,
		StartedAt: time.Now().UTC(),
	}
	start := time.Now()

	err := e.reconcile(ctx, snapshot, &run)
	e.metrics.ObserveReconcile(string(schema.Kind), start, run.Closed, run.Inserted, run.Updated, err)
	if err != nil {
		return domain.ReconciliationRun{}, errors.Wrapf(err, "reconcile %s as of %s", schema.Kind, asOf.Format(domain.DateLayout))
	}

	e.logger.Infow("Reconciled snapshot",
		"kind", schema.Kind,
		"as_of", asOf.Format(domain.DateLayout),
		"source", source,
		"policy", e.policy.Name(),
		"closed", run.Closed,
		"inserted", run.Inserted,
		"updated", run.Updated,
		"unchanged", run.Unchanged,
	)
	return run, nil
}

func (e *Engine[A]) reconcile(ctx context.Context, snapshot []domain.Record[A], run *domain.ReconciliationRun) error {
	schema := e.table.Schema()
	if len(snapshot) == 0 {
		return errors.Wrap(domain.ErrInvalidSnapshot, "snapshot is empty")
	}
	for idx, record := range snapshot {
		if err := schema.Validate(record.Attrs); err != nil {
			return errors.Wrapf(err, "record %d", idx)
		}
		if utf8.RuneCountInString(record.ExternalID) > domain.MaxExternalIDLength {
			return errors.Wrapf(domain.ErrInvalidSnapshot, "record %d external id exceeds %d characters", idx, domain.MaxExternalIDLength)
		}
	}

	return e.conn.WithTx(ctx, func(q db.Querier) error {
		bounds, err := e.table.Bounds(ctx, q)
		if err != nil {
			return err
		}
		if bounds.Watermark != nil && run.AsOf.Before(*bounds.Watermark) {
			return errors.Wrapf(domain.ErrOutOfOrder, "latest recorded date is %s", bounds.Watermark.Format(domain.DateLayout))
		}

		records, err := e.resolveIdentities(ctx, q, snapshot)
		if err != nil {
			return err
		}

		existing, err := e.policy.Load(ctx, q, e.table)
		if err != nil {
			return err
		}
		plan := e.policy.Plan(existing, records, run.AsOf, schema.Equal)
		run.Closed = len(plan.Close)
		run.Inserted = len(plan.Insert)
		run.Updated = len(plan.Update)
		run.Unchanged = plan.Unchanged
		if plan.Empty() {
			return nil
		}

		if err := e.policy.Apply(ctx, q, e.table, plan, run.AsOf); err != nil {
			return err
		}
		run.FinishedAt = time.Now().UTC()
		return e.runs.Record(ctx, q, *run)
	})
}

// resolveIdentities fills in missing external ids and drops duplicate
// identities. A record without an id reuses the id of the single open version
// carrying the same name; otherwise an id is derived from the name. When a
// derived id collides, the explicit record wins, else the first one.
// Duplicates of explicit ids are an error.
func (e *Engine[A]) resolveIdentities(ctx context.Context, q db.Querier, snapshot []domain.Record[A]) ([]domain.Record[A], error) {
	schema := e.table.Schema()
	records := make([]domain.Record[A], 0, len(snapshot))
	index := make(map[string]int, len(snapshot))

	for idx, record := range snapshot {
		if record.ExternalID == "" {
			name := schema.Name(record.Attrs)
			// Two matches are enough to know the name is ambiguous.
			matches, err := e.table.CurrentByName(ctx, q, name, 2)
			if err != nil {
				return nil, err
			}
			if len(matches) == 1 {
				record.ExternalID = matches[0].ExternalID
			} else {
				record.ExternalID = domain.DeriveExternalID(name)
				e.metrics.IncrementDerivedIdentity(string(schema.Kind))
				e.logger.Warnw("Derived external id from name",
					"kind", schema.Kind,
					"name", name,
					"external_id", record.ExternalID,
					"name_ambiguous", len(matches) > 1,
				)
			}
			record.Derived = true
		}

		pos, dup := index[record.ExternalID]
		if !dup {
			index[record.ExternalID] = len(records)
			records = append(records, record)
			continue
		}

		first := records[pos]
		if !record.Derived && !first.Derived {
			return nil, errors.Wrapf(domain.ErrInvalidSnapshot, "record %d repeats external id %q", idx, record.ExternalID)
		}
		kept, dropped := first, record
		if first.Derived && !record.Derived {
			kept, dropped = record, first
			records[pos] = record
		}
		e.logger.Warnw("Dropping record with colliding external id",
			"kind", schema.Kind,
			"external_id", record.ExternalID,
			"kept", schema.Name(kept.Attrs),
			"dropped", schema.Name(dropped.Attrs),
		)
	}
	return records, nil
}
