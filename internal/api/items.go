package api

import (
	"context"

	"github.com/google/uuid"
	"github.com/rpattn/regwatch/internal/domain"
	"github.com/rpattn/regwatch/internal/middleware"
)

// FirmItem is the JSON form of a firm version.
type FirmItem struct {
	ID string `json:"id"`
	domain.Firm
	ValidFrom string  `json:"valid_from"`
	ValidTo   *string `json:"valid_to"`
}

// AttorneyItem is the JSON form of an attorney version. FirmRecord is the
// linked firm row when one is known.
type AttorneyItem struct {
	ID string `json:"id"`
	domain.Attorney
	ValidFrom  string    `json:"valid_from"`
	ValidTo    *string   `json:"valid_to"`
	FirmRecord *FirmItem `json:"firm_record,omitempty"`
}

// MovementItem pairs the versions before and after a firm change.
type MovementItem struct {
	Old AttorneyItem `json:"old"`
	New AttorneyItem `json:"new"`
}

func datePtr(p domain.Period) *string {
	if p.ValidTo == nil {
		return nil
	}
	s := domain.FormatDate(p.ValidTo)
	return &s
}

func firmItem(v domain.FirmVersion) FirmItem {
	return FirmItem{
		ID:        v.ExternalID,
		Firm:      v.Attrs,
		ValidFrom: v.ValidFrom.Format(domain.DateLayout),
		ValidTo:   datePtr(v.Period),
	}
}

func attorneyItem(v domain.AttorneyVersion, firms map[uuid.UUID]domain.FirmVersion) AttorneyItem {
	item := AttorneyItem{
		ID:        v.ExternalID,
		Attorney:  v.Attrs,
		ValidFrom: v.ValidFrom.Format(domain.DateLayout),
		ValidTo:   datePtr(v.Period),
	}
	if v.Attrs.FirmID != nil {
		if firm, ok := firms[*v.Attrs.FirmID]; ok {
			f := firmItem(firm)
			item.FirmRecord = &f
		}
	}
	return item
}

// resolveFirms loads the firms referenced by attorneys through the request's
// firm loader. Without a loader no firms are resolved.
func resolveFirms(ctx context.Context, attorneys ...domain.AttorneyVersion) (map[uuid.UUID]domain.FirmVersion, error) {
	loader := middleware.FirmLoaderFromContext(ctx)
	if loader == nil {
		return nil, nil
	}
	seen := make(map[uuid.UUID]struct{})
	var ids []uuid.UUID
	for _, a := range attorneys {
		if a.Attrs.FirmID == nil {
			continue
		}
		if _, ok := seen[*a.Attrs.FirmID]; ok {
			continue
		}
		seen[*a.Attrs.FirmID] = struct{}{}
		ids = append(ids, *a.Attrs.FirmID)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return loader.LoadAll(ctx, ids)
}

func attorneyItems(ctx context.Context, versions []domain.AttorneyVersion) ([]AttorneyItem, error) {
	firms, err := resolveFirms(ctx, versions...)
	if err != nil {
		return nil, err
	}
	items := make([]AttorneyItem, len(versions))
	for i, v := range versions {
		items[i] = attorneyItem(v, firms)
	}
	return items, nil
}

func movementItems(ctx context.Context, movements []domain.Movement[domain.Attorney]) ([]MovementItem, error) {
	versions := make([]domain.AttorneyVersion, 0, 2*len(movements))
	for _, m := range movements {
		versions = append(versions, m.Old, m.New)
	}
	firms, err := resolveFirms(ctx, versions...)
	if err != nil {
		return nil, err
	}
	items := make([]MovementItem, len(movements))
	for i, m := range movements {
		items[i] = MovementItem{Old: attorneyItem(m.Old, firms), New: attorneyItem(m.New, firms)}
	}
	return items, nil
}

func firmItems(versions []domain.FirmVersion) []FirmItem {
	items := make([]FirmItem, len(versions))
	for i, v := range versions {
		items[i] = firmItem(v)
	}
	return items
}
