// Package firmloader batches firm lookups made while rendering attorneys.
package firmloader

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/graph-gophers/dataloader"
	"github.com/rpattn/regwatch/internal/domain"
)

// Source resolves firm rows by surrogate key.
type Source interface {
	FirmsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.FirmVersion, error)
}

// FirmLoader coalesces firm lookups issued within a short window into one
// query.
type FirmLoader struct {
	Loader *dataloader.Loader
}

// NewFirmLoader creates a loader reading from source. A loader caches for its
// whole lifetime, so create one per request.
func NewFirmLoader(source Source) *FirmLoader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		results := make([]*dataloader.Result, len(keys))
		ids := make([]uuid.UUID, 0, len(keys))
		for i, k := range keys {
			id, err := uuid.Parse(k.String())
			if err != nil {
				results[i] = &dataloader.Result{Error: errors.Wrapf(err, "invalid firm id %q", k.String())}
				continue
			}
			ids = append(ids, id)
		}

		firms, err := source.FirmsByIDs(ctx, ids)
		if err != nil {
			for i := range results {
				if results[i] == nil {
					results[i] = &dataloader.Result{Error: err}
				}
			}
			return results
		}

		// Results follow key order; unknown ids resolve to nil.
		for i, k := range keys {
			if results[i] != nil {
				continue
			}
			id := uuid.MustParse(k.String())
			if firm, ok := firms[id]; ok {
				results[i] = &dataloader.Result{Data: firm}
			} else {
				results[i] = &dataloader.Result{Data: nil}
			}
		}
		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(5*time.Millisecond))
	return &FirmLoader{Loader: loader}
}

// Load returns the firm with the given id, or nil when it does not exist.
func (l *FirmLoader) Load(ctx context.Context, id uuid.UUID) (*domain.FirmVersion, error) {
	data, err := l.Loader.Load(ctx, dataloader.StringKey(id.String()))()
	if err != nil {
		return nil, err
	}
	firm, ok := data.(domain.FirmVersion)
	if !ok {
		return nil, nil
	}
	return &firm, nil
}

// LoadAll resolves every id concurrently so that they share one batch.
// Missing firms are absent from the result.
func (l *FirmLoader) LoadAll(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.FirmVersion, error) {
	keys := make(dataloader.Keys, len(ids))
	for i, id := range ids {
		keys[i] = dataloader.StringKey(id.String())
	}
	data, errs := l.Loader.LoadMany(ctx, keys)()
	out := make(map[uuid.UUID]domain.FirmVersion, len(ids))
	for i, item := range data {
		if i < len(errs) && errs[i] != nil {
			return nil, errs[i]
		}
		if firm, ok := item.(domain.FirmVersion); ok {
			out[ids[i]] = firm
		}
	}
	return out, nil
}
