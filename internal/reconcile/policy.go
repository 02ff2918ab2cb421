// Package reconcile turns an observed snapshot into writes against the
// versioned store.
package reconcile

import (
	"context"
	"time"

	"github.com/rpattn/regwatch/internal/db"
	"github.com/rpattn/regwatch/internal/domain"
	"github.com/rpattn/regwatch/internal/repository"
)

// Plan is the set of writes a reconciliation will perform.
type Plan[A any] struct {
	// Close lists open versions to end on the reconciliation date.
	Close []domain.Version[A]
	// Insert lists new open versions starting on the reconciliation date.
	Insert []domain.Version[A]
	// Update lists rows rewritten in place, carrying their new attributes.
	Update    []domain.Version[A]
	Unchanged int
}

// Empty reports whether the plan writes nothing.
func (p Plan[A]) Empty() bool {
	return len(p.Close) == 0 && len(p.Insert) == 0 && len(p.Update) == 0
}

// Policy is the write strategy of one entity kind.
type Policy[A any] interface {
	Name() string
	// Load reads the rows the snapshot is compared with.
	Load(ctx context.Context, q db.Querier, table *repository.Table[A]) ([]domain.Version[A], error)
	// Plan computes the writes without touching storage.
	Plan(existing []domain.Version[A], snapshot []domain.Record[A], asOf time.Time, equal func(a, b A) bool) Plan[A]
	// Apply performs a plan.
	Apply(ctx context.Context, q db.Querier, table *repository.Table[A], plan Plan[A], asOf time.Time) error
}

// PolicyFor returns the strategy configured for a schema.
func PolicyFor[A any](schema repository.Schema[A]) Policy[A] {
	if schema.Policy == repository.PolicyUpsert {
		return Upsert[A]{}
	}
	return Temporal[A]{}
}

// Temporal versions every change: lapsed identities are closed, changed ones
// closed and re-inserted, new ones inserted.
type Temporal[A any] struct{}

func (Temporal[A]) Name() string { return repository.PolicyTemporal.String() }

func (Temporal[A]) Load(ctx context.Context, q db.Querier, table *repository.Table[A]) ([]domain.Version[A], error) {
	return table.Current(ctx, q)
}

func (Temporal[A]) Plan(existing []domain.Version[A], snapshot []domain.Record[A], asOf time.Time, equal func(a, b A) bool) Plan[A] {
	asOf = domain.Day(asOf)
	current := make(map[string]domain.Version[A], len(existing))
	var plan Plan[A]
	for _, version := range existing {
		if _, dup := current[version.ExternalID]; dup {
			// A second open version of one identity is closed as well.
			plan.Close = append(plan.Close, version)
			continue
		}
		current[version.ExternalID] = version
	}

	observed := make(map[string]struct{}, len(snapshot))
	for _, record := range snapshot {
		observed[record.ExternalID] = struct{}{}
	}
	for _, version := range existing {
		if _, ok := observed[version.ExternalID]; !ok {
			if current[version.ExternalID].ID == version.ID {
				plan.Close = append(plan.Close, version)
			}
		}
	}

	for _, record := range snapshot {
		version, ok := current[record.ExternalID]
		switch {
		case !ok:
			plan.Insert = append(plan.Insert, domain.NewVersion(record.ExternalID, record.Attrs, asOf))
		case equal(version.Attrs, record.Attrs):
			plan.Unchanged++
		default:
			plan.Close = append(plan.Close, version)
			plan.Insert = append(plan.Insert, domain.NewVersion(record.ExternalID, record.Attrs, asOf))
		}
	}
	return plan
}

func (Temporal[A]) Apply(ctx context.Context, q db.Querier, table *repository.Table[A], plan Plan[A], asOf time.Time) error {
	for _, version := range plan.Close {
		if err := table.Close(ctx, q, version.ID, asOf); err != nil {
			return err
		}
	}
	for _, version := range plan.Insert {
		if err := table.Insert(ctx, q, version); err != nil {
			return err
		}
	}
	return nil
}

// Upsert keeps one row per identity and rewrites it in place. Identities
// missing from a snapshot are left untouched.
type Upsert[A any] struct{}

func (Upsert[A]) Name() string { return repository.PolicyUpsert.String() }

// Load returns the latest row of every identity, open or not.
func (Upsert[A]) Load(ctx context.Context, q db.Querier, table *repository.Table[A]) ([]domain.Version[A], error) {
	all, err := table.All(ctx, q)
	if err != nil {
		return nil, err
	}
	latest := make([]domain.Version[A], 0, len(all))
	index := make(map[string]int, len(all))
	for _, version := range all {
		if idx, ok := index[version.ExternalID]; ok {
			// All is ordered by validity, so later rows win.
			latest[idx] = version
			continue
		}
		index[version.ExternalID] = len(latest)
		latest = append(latest, version)
	}
	return latest, nil
}

func (Upsert[A]) Plan(existing []domain.Version[A], snapshot []domain.Record[A], asOf time.Time, equal func(a, b A) bool) Plan[A] {
	rows := make(map[string]domain.Version[A], len(existing))
	for _, version := range existing {
		rows[version.ExternalID] = version
	}

	var plan Plan[A]
	for _, record := range snapshot {
		version, ok := rows[record.ExternalID]
		switch {
		case !ok:
			plan.Insert = append(plan.Insert, domain.NewVersion(record.ExternalID, record.Attrs, asOf))
		case equal(version.Attrs, record.Attrs):
			plan.Unchanged++
		default:
			version.Attrs = record.Attrs
			plan.Update = append(plan.Update, version)
		}
	}
	return plan
}

func (Upsert[A]) Apply(ctx context.Context, q db.Querier, table *repository.Table[A], plan Plan[A], _ time.Time) error {
	for _, version := range plan.Update {
		if err := table.Update(ctx, q, version.ID, version.Attrs); err != nil {
			return err
		}
	}
	for _, version := range plan.Insert {
		if err := table.Insert(ctx, q, version); err != nil {
			return err
		}
	}
	return nil
}
