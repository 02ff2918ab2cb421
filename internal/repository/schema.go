package repository

import (
	"strings"
	"unicode/utf8"

	"github.com/rpattn/regwatch/internal/domain"
)

// Policy selects how reconciliation writes a kind.
type Policy int

const (
	// PolicyTemporal closes superseded versions and inserts new ones.
	PolicyTemporal Policy = iota
	// PolicyUpsert updates the single row of an identity in place.
	PolicyUpsert
)

func (p Policy) String() string {
	switch p {
	case PolicyTemporal:
		return "temporal"
	case PolicyUpsert:
		return "upsert"
	default:
		return "unknown"
	}
}

// Schema maps one entity kind onto its table.
type Schema[A any] struct {
	Kind  domain.Kind
	Table string
	// Columns lists the attribute columns in the order Values and Scan use.
	Columns []string
	Values  func(A) []any
	// Scan returns fresh scan targets for Columns and a function assembling
	// the payload once they have been filled.
	Scan     func() ([]any, func() A)
	Equal    func(a, b A) bool
	Validate func(A) error
	Name     func(A) string
	Policy   Policy
	// Tracked extracts the attribute whose changes count as movements. Nil
	// for kinds without movements.
	Tracked func(A) string
	// Matches applies capability filters to a payload.
	Matches func(A, domain.Filter) bool
	// Rank holds the comparison functions accepted as ordering keys.
	Rank map[string]func(a, b A) int
}

// AllColumns is the full row layout: identity, attributes, validity.
func (s Schema[A]) AllColumns() []string {
	columns := make([]string, 0, len(s.Columns)+4)
	columns = append(columns, "id", "external_id")
	columns = append(columns, s.Columns...)
	return append(columns, "valid_from", "valid_to")
}

func compareFold(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

func compareLength(a, b string) int {
	return utf8.RuneCountInString(a) - utf8.RuneCountInString(b)
}
