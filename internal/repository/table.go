package repository

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rpattn/regwatch/internal/db"
	"github.com/rpattn/regwatch/internal/domain"
	"github.com/rpattn/regwatch/internal/temporal"
)

// Table is the versioned store for one entity kind. Every method takes the
// querier to run on so callers decide the transaction boundary.
type Table[A any] struct {
	schema Schema[A]
}

// NewTable creates a store over schema.
func NewTable[A any](schema Schema[A]) *Table[A] {
	return &Table[A]{schema: schema}
}

// Schema returns the table's schema.
func (t *Table[A]) Schema() Schema[A] {
	return t.schema
}

// Bounds summarises the dates recorded in a table.
type Bounds struct {
	// Oldest is the earliest valid_from, nil for an empty table.
	Oldest *time.Time
	// Watermark is the latest valid_from or valid_to, nil for an empty table.
	Watermark *time.Time
}

// RollbackResult counts the rows touched by RollbackSince.
type RollbackResult struct {
	Deleted  int64
	Reopened int64
}

// Insert stores a new version.
func (t *Table[A]) Insert(ctx context.Context, q db.Querier, version domain.Version[A]) error {
	if version.ID == uuid.Nil {
		version.ID = uuid.New()
	}
	columns := t.schema.AllColumns()
	args := make([]any, 0, len(columns))
	args = append(args, version.ID, version.ExternalID)
	args = append(args, t.schema.Values(version.Attrs)...)
	args = append(args, domain.Day(version.ValidFrom), db.NullTime(version.ValidTo))

	query := "INSERT INTO " + t.schema.Table + " (" + strings.Join(columns, ", ") + ") VALUES (" +
		strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	if _, err := q.Exec(ctx, query, args...); err != nil {
		return errors.Wrapf(err, "failed to insert %s %s", t.schema.Kind, version.ExternalID)
	}
	return nil
}

// Close ends an open version on validTo. Closing a version that is already
// closed reports ErrNotFound.
func (t *Table[A]) Close(ctx context.Context, q db.Querier, id uuid.UUID, validTo time.Time) error {
	affected, err := q.Exec(ctx,
		"UPDATE "+t.schema.Table+" SET valid_to = ? WHERE id = ? AND valid_to IS NULL",
		domain.Day(validTo), id,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to close %s %s", t.schema.Kind, id)
	}
	if affected == 0 {
		return errors.Wrapf(domain.ErrNotFound, "open %s version %s", t.schema.Kind, id)
	}
	return nil
}

// Update rewrites the attributes of a row in place. Only kinds stored with
// the upsert policy allow it; temporal versions are immutable.
func (t *Table[A]) Update(ctx context.Context, q db.Querier, id uuid.UUID, attrs A) error {
	if t.schema.Policy != PolicyUpsert {
		return errors.Wrapf(domain.ErrUnsupportedKind, "update in place of %s", t.schema.Kind)
	}
	assignments := make([]string, len(t.schema.Columns))
	for idx, column := range t.schema.Columns {
		assignments[idx] = column + " = ?"
	}
	args := append(t.schema.Values(attrs), id)
	affected, err := q.Exec(ctx,
		"UPDATE "+t.schema.Table+" SET "+strings.Join(assignments, ", ")+" WHERE id = ?",
		args...,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to update %s %s", t.schema.Kind, id)
	}
	if affected == 0 {
		return errors.Wrapf(domain.ErrNotFound, "%s %s", t.schema.Kind, id)
	}
	return nil
}

// Select runs a query built over this table's columns.
func (t *Table[A]) Select(ctx context.Context, q db.Querier, query temporal.Query) ([]domain.Version[A], error) {
	query.Table = t.schema.Table
	query.Columns = t.schema.AllColumns()
	if query.Alias == "" {
		query.Alias = temporal.DefaultAlias
	}
	statement, args := query.SQL()

	rows, err := q.Query(ctx, statement, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query %s", t.schema.Table)
	}
	defer rows.Close()

	versions := []domain.Version[A]{}
	for rows.Next() {
		version, err := t.scan(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", t.schema.Table)
	}
	return versions, nil
}

func (t *Table[A]) scan(row db.Row) (domain.Version[A], error) {
	var (
		version   domain.Version[A]
		validFrom db.NullDate
		validTo   db.NullDate
	)
	attrs, build := t.schema.Scan()
	targets := make([]any, 0, len(attrs)+4)
	targets = append(targets, &version.ID, &version.ExternalID)
	targets = append(targets, attrs...)
	targets = append(targets, &validFrom, &validTo)

	if err := row.Scan(targets...); err != nil {
		return version, errors.Wrapf(err, "failed to scan %s", t.schema.Kind)
	}
	version.Attrs = build()
	version.ValidFrom = validFrom.Time
	version.ValidTo = validTo.Ptr()
	return version, nil
}

// AsOf returns the versions valid on date that satisfy preds, ordered by
// identity.
func (t *Table[A]) AsOf(ctx context.Context, q db.Querier, date time.Time, preds ...temporal.Predicate) ([]domain.Version[A], error) {
	return t.Select(ctx, q, temporal.AsOfQuery(t.schema.Table, nil, date, preds...))
}

// History returns every version of an identity, oldest first.
func (t *Table[A]) History(ctx context.Context, q db.Querier, externalID string) ([]domain.Version[A], error) {
	return t.Select(ctx, q, temporal.HistoryQuery(t.schema.Table, nil, externalID))
}

// Current returns the open versions satisfying preds.
func (t *Table[A]) Current(ctx context.Context, q db.Querier, preds ...temporal.Predicate) ([]domain.Version[A], error) {
	query := temporal.Select(t.schema.Table, nil).
		Filter(temporal.Current()).
		Filter(preds...).
		Order("external_id", "valid_from")
	return t.Select(ctx, q, query)
}

// CurrentByName returns up to limit open versions whose name matches
// exactly. A limit of zero returns them all.
func (t *Table[A]) CurrentByName(ctx context.Context, q db.Querier, name string, limit int) ([]domain.Version[A], error) {
	query := temporal.Select(t.schema.Table, nil).
		Filter(temporal.Current(), temporal.Eq("name", name)).
		Order("external_id", "valid_from")
	query.Limit = limit
	return t.Select(ctx, q, query)
}

// ByIDs returns the rows with the given surrogate keys, in no particular
// order.
func (t *Table[A]) ByIDs(ctx context.Context, q db.Querier, ids []uuid.UUID) ([]domain.Version[A], error) {
	values := make([]any, len(ids))
	for idx, id := range ids {
		values[idx] = id
	}
	return t.Select(ctx, q, temporal.Select(t.schema.Table, nil).Filter(temporal.In("id", values)))
}

// All returns every stored row ordered by identity then validity.
func (t *Table[A]) All(ctx context.Context, q db.Querier) ([]domain.Version[A], error) {
	return t.Select(ctx, q, temporal.Select(t.schema.Table, nil).Order("external_id", "valid_from", "valid_to IS NULL", "valid_to"))
}

// Count returns the number of stored rows.
func (t *Table[A]) Count(ctx context.Context, q db.Querier) (int64, error) {
	var count int64
	if err := q.QueryRow(ctx, "SELECT COUNT(*) FROM "+t.schema.Table).Scan(&count); err != nil {
		return 0, errors.Wrapf(err, "failed to count %s", t.schema.Table)
	}
	return count, nil
}

// Bounds reports the oldest and the latest dates recorded in the table.
func (t *Table[A]) Bounds(ctx context.Context, q db.Querier) (Bounds, error) {
	var oldest, latestFrom, latestTo db.NullDate
	err := q.QueryRow(ctx,
		"SELECT MIN(valid_from), MAX(valid_from), MAX(valid_to) FROM "+t.schema.Table,
	).Scan(&oldest, &latestFrom, &latestTo)
	if err != nil {
		return Bounds{}, errors.Wrapf(err, "failed to read bounds of %s", t.schema.Table)
	}

	bounds := Bounds{Oldest: oldest.Ptr(), Watermark: latestFrom.Ptr()}
	if latestTo.Valid && (bounds.Watermark == nil || latestTo.Time.After(*bounds.Watermark)) {
		bounds.Watermark = latestTo.Ptr()
	}
	return bounds, nil
}

// PatchExternalID moves every version of one identity to another. It is a
// correction tool for derived identities that collided or changed. Merging
// into an identity whose versions share a day with the moved ones reports
// ErrConflict and changes nothing.
func (t *Table[A]) PatchExternalID(ctx context.Context, q db.Querier, from, to string) (int64, error) {
	if strings.TrimSpace(to) == "" {
		return 0, errors.Wrap(domain.ErrInvalidSnapshot, "replacement external id is empty")
	}
	if from != to {
		if err := t.checkMerge(ctx, q, from, to); err != nil {
			return 0, err
		}
	}
	affected, err := q.Exec(ctx,
		"UPDATE "+t.schema.Table+" SET external_id = ? WHERE external_id = ?",
		to, from,
	)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to patch %s external id %s", t.schema.Kind, from)
	}
	if affected == 0 {
		return 0, errors.Wrapf(domain.ErrNotFound, "%s %s", t.schema.Kind, from)
	}
	return affected, nil
}

func (t *Table[A]) checkMerge(ctx context.Context, q db.Querier, from, to string) error {
	moved, err := t.History(ctx, q, from)
	if err != nil {
		return err
	}
	target, err := t.History(ctx, q, to)
	if err != nil {
		return err
	}
	for _, a := range moved {
		for _, b := range target {
			if a.Overlaps(b.Period) {
				return errors.Wrapf(domain.ErrConflict, "%s %s valid from %s overlaps %s valid from %s",
					t.schema.Kind, from, a.ValidFrom.Format(domain.DateLayout), to, b.ValidFrom.Format(domain.DateLayout))
			}
		}
	}
	return nil
}

// RollbackSince undoes every reconciliation on or after date: versions that
// started on or after it are deleted and versions closed on or after it are
// reopened. In-place updates of upsert kinds are not reverted.
func (t *Table[A]) RollbackSince(ctx context.Context, q db.Querier, date time.Time) (RollbackResult, error) {
	date = domain.Day(date)
	var result RollbackResult

	deleted, err := q.Exec(ctx, "DELETE FROM "+t.schema.Table+" WHERE valid_from >= ?", date)
	if err != nil {
		return result, errors.Wrapf(err, "failed to delete %s versions", t.schema.Kind)
	}
	result.Deleted = deleted

	reopened, err := q.Exec(ctx, "UPDATE "+t.schema.Table+" SET valid_to = NULL WHERE valid_to >= ?", date)
	if err != nil {
		return result, errors.Wrapf(err, "failed to reopen %s versions", t.schema.Kind)
	}
	result.Reopened = reopened
	return result, nil
}

// Truncate deletes every row.
func (t *Table[A]) Truncate(ctx context.Context, q db.Querier) (int64, error) {
	deleted, err := q.Exec(ctx, "DELETE FROM "+t.schema.Table)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to truncate %s", t.schema.Table)
	}
	return deleted, nil
}
