package domain

import (
	"time"

	"github.com/google/uuid"
)

// Kind names a versioned entity type.
type Kind string

const (
	KindAttorney Kind = "attorney"
	KindFirm     Kind = "firm"
)

// Period is the validity interval of a version: [ValidFrom, ValidTo).
// A nil ValidTo means the version is still current.
type Period struct {
	ValidFrom time.Time  `json:"valid_from"`
	ValidTo   *time.Time `json:"valid_to"`
}

// Current reports whether the period is still open.
func (p Period) Current() bool {
	return p.ValidTo == nil
}

// Effective reports whether the period covers at least one day. Versions
// closed on the day they were opened are retracted and never visible.
func (p Period) Effective() bool {
	return p.ValidTo == nil || p.ValidTo.After(p.ValidFrom)
}

// Contains reports whether the period is valid on the given date.
func (p Period) Contains(date time.Time) bool {
	date = Day(date)
	if p.ValidFrom.After(date) {
		return false
	}
	return p.ValidTo == nil || p.ValidTo.After(date)
}

// Overlaps reports whether both periods are effective and share a day.
func (p Period) Overlaps(other Period) bool {
	if !p.Effective() || !other.Effective() {
		return false
	}
	startsBeforeOtherEnds := other.ValidTo == nil || p.ValidFrom.Before(*other.ValidTo)
	otherStartsBeforeEnd := p.ValidTo == nil || other.ValidFrom.Before(*p.ValidTo)
	return startsBeforeOtherEnds && otherStartsBeforeEnd
}

// Version is one observed version of a real-world entity. A is the
// kind-specific attribute payload.
type Version[A any] struct {
	ID         uuid.UUID `json:"-"`
	ExternalID string    `json:"id"`
	Attrs      A         `json:"attributes"`
	Period
}

// NewVersion creates a fresh, open version starting on validFrom.
func NewVersion[A any](externalID string, attrs A, validFrom time.Time) Version[A] {
	return Version[A]{
		ID:         uuid.New(),
		ExternalID: externalID,
		Attrs:      attrs,
		Period:     Period{ValidFrom: Day(validFrom)},
	}
}

// Record is an observed entity in a snapshot: attributes plus its identity.
// ExternalID may be empty when the source did not provide one.
type Record[A any] struct {
	ExternalID string
	Attrs      A
	// Derived is set when ExternalID was synthesised from other attributes.
	Derived bool
}

// Movement is a pair of adjacent versions whose tracked attribute differs.
type Movement[A any] struct {
	Old Version[A] `json:"old"`
	New Version[A] `json:"new"`
}
