// Package analytics derives registrations, lapses, movements and rankings
// from the versioned register.
package analytics

import (
	"context"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rpattn/regwatch/internal/db"
	"github.com/rpattn/regwatch/internal/domain"
	"github.com/rpattn/regwatch/internal/repository"
	"github.com/rpattn/regwatch/internal/temporal"
)

// Registrations returns the identities valid on window.Last but not on
// window.First whose current version started inside the window, newest
// first.
func Registrations[A any](ctx context.Context, q db.Querier, table *repository.Table[A], window domain.Window, filter domain.Filter) ([]domain.Version[A], error) {
	schema := table.Schema()
	query := temporal.Select(schema.Table, nil).
		Filter(
			temporal.AsOf(window.Last),
			temporal.Between("valid_from", window),
			temporal.NotExists(schema.Table, "p",
				temporal.SameIdentity(),
				temporal.Inner(temporal.AsOf(window.First)),
			),
		).
		Filter(temporal.FilterPredicates(filter)...).
		Order("valid_from DESC", "external_id")
	versions, err := table.Select(ctx, q, query)
	if err != nil {
		return nil, errors.Wrap(err, "registrations")
	}
	return versions, nil
}

// Lapses returns versions that ended inside the window with no later
// version starting on or before window.Last. A version superseded by a change
// is not a lapse.
func Lapses[A any](ctx context.Context, q db.Querier, table *repository.Table[A], window domain.Window, filter domain.Filter) ([]domain.Version[A], error) {
	schema := table.Schema()
	query := temporal.Select(schema.Table, nil).
		Filter(
			temporal.Effective(),
			temporal.Between("valid_to", window),
			temporal.NotExists(schema.Table, "nx",
				temporal.SameIdentity(),
				temporal.Inner(temporal.Effective()),
				temporal.StartsAfter(),
				temporal.Inner(temporal.StartsOnOrBefore(window.Last)),
			),
		).
		Filter(temporal.FilterPredicates(filter)...).
		Order("valid_to DESC", "external_id")
	versions, err := table.Select(ctx, q, query)
	if err != nil {
		return nil, errors.Wrap(err, "lapses")
	}
	return versions, nil
}

// Movements returns adjacent pairs of versions of one identity whose tracked
// attribute differs, where the newer version started inside the window.
// Retracted versions are skipped so they never split or form a pair. Filters
// apply to the newer version. Pairs are ordered newest first.
func Movements[A any](ctx context.Context, q db.Querier, table *repository.Table[A], window domain.Window, filter domain.Filter) ([]domain.Movement[A], error) {
	schema := table.Schema()
	if schema.Tracked == nil {
		return nil, errors.Wrapf(domain.ErrUnsupportedKind, "movements of %s", schema.Kind)
	}

	query := temporal.Select(schema.Table, nil).
		Filter(
			temporal.Effective(),
			temporal.StartsOnOrBefore(window.Last),
			temporal.Exists(schema.Table, "w",
				temporal.SameIdentity(),
				temporal.Inner(temporal.Effective()),
				temporal.Inner(temporal.Between("valid_from", window)),
			),
		).
		Order("external_id", "valid_from")
	versions, err := table.Select(ctx, q, query)
	if err != nil {
		return nil, errors.Wrap(err, "movements")
	}

	var movements []domain.Movement[A]
	for idx := 1; idx < len(versions); idx++ {
		older, newer := versions[idx-1], versions[idx]
		if older.ExternalID != newer.ExternalID {
			continue
		}
		if newer.ValidFrom.Before(window.First) || newer.ValidFrom.After(window.Last) {
			continue
		}
		if schema.Tracked(older.Attrs) == schema.Tracked(newer.Attrs) {
			continue
		}
		if schema.Matches != nil && !schema.Matches(newer.Attrs, filter) {
			continue
		}
		movements = append(movements, domain.Movement[A]{Old: older, New: newer})
	}

	sort.SliceStable(movements, func(i, j int) bool {
		return movements[i].New.ValidFrom.After(movements[j].New.ValidFrom)
	})
	return movements, nil
}

// Ranked returns the versions valid on date ordered by a "+key"/"-key"
// request. Unknown or empty keys keep the identity order of AsOf.
func Ranked[A any](ctx context.Context, q db.Querier, table *repository.Table[A], date time.Time, order domain.OrderBy, filter domain.Filter) ([]domain.Version[A], error) {
	versions, err := table.AsOf(ctx, q, date, temporal.FilterPredicates(filter)...)
	if err != nil {
		return nil, errors.Wrap(err, "ranked")
	}
	Sort(table.Schema(), versions, order)
	return versions, nil
}

// Sort orders versions in place by a ranking key of schema. Ties keep their
// relative order in both directions.
func Sort[A any](schema repository.Schema[A], versions []domain.Version[A], order domain.OrderBy) {
	compare, ok := schema.Rank[order.Key]
	if !ok {
		return
	}
	sort.SliceStable(versions, func(i, j int) bool {
		if order.Descending() {
			return compare(versions[j].Attrs, versions[i].Attrs) < 0
		}
		return compare(versions[i].Attrs, versions[j].Attrs) < 0
	})
}
