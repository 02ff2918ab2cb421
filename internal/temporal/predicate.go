// Package temporal renders the validity predicates every versioned read is
// built from.
package temporal

import (
	"strings"
	"time"

	"github.com/rpattn/regwatch/internal/domain"
)

// Predicate is a SQL condition over a table alias with its positional args.
type Predicate func(alias string) (string, []any)

func col(alias, column string) string {
	if alias == "" {
		return column
	}
	return alias + "." + column
}

// AsOf selects versions valid on date: valid_from <= d AND (valid_to IS NULL
// OR valid_to > d). Retracted versions, closed on the day they opened, never
// satisfy it.
func AsOf(date time.Time) Predicate {
	date = domain.Day(date)
	return func(alias string) (string, []any) {
		from, to := col(alias, "valid_from"), col(alias, "valid_to")
		return from + " <= ? AND (" + to + " IS NULL OR " + to + " > ?)", []any{date, date}
	}
}

// Current selects open versions.
func Current() Predicate {
	return func(alias string) (string, []any) {
		return col(alias, "valid_to") + " IS NULL", nil
	}
}

// Effective selects versions that were visible for at least one day.
func Effective() Predicate {
	return func(alias string) (string, []any) {
		to := col(alias, "valid_to")
		return "(" + to + " IS NULL OR " + to + " > " + col(alias, "valid_from") + ")", nil
	}
}

// Identity selects the versions of one entity.
func Identity(externalID string) Predicate {
	return Eq("external_id", externalID)
}

// Eq compares a column with a value.
func Eq(column string, value any) Predicate {
	return func(alias string) (string, []any) {
		return col(alias, column) + " = ?", []any{value}
	}
}

// Between selects rows whose date column lies in the inclusive window.
func Between(column string, window domain.Window) Predicate {
	return func(alias string) (string, []any) {
		c := col(alias, column)
		return c + " >= ? AND " + c + " <= ?", []any{window.First, window.Last}
	}
}

// Flag selects rows where a boolean column is set.
func Flag(column string) Predicate {
	return Eq(column, true)
}

// FilterPredicates translates capability filters into predicates.
func FilterPredicates(f domain.Filter) []Predicate {
	var preds []Predicate
	if f.Patents {
		preds = append(preds, Flag("patents"))
	}
	if f.Trademarks {
		preds = append(preds, Flag("trademarks"))
	}
	return preds
}

// Render joins predicates with AND. An empty list renders as "1=1".
func Render(alias string, preds ...Predicate) (string, []any) {
	if len(preds) == 0 {
		return "1=1", nil
	}
	parts := make([]string, 0, len(preds))
	var args []any
	for _, pred := range preds {
		clause, clauseArgs := pred(alias)
		parts = append(parts, "("+clause+")")
		args = append(args, clauseArgs...)
	}
	return strings.Join(parts, " AND "), args
}

// In selects rows whose column matches any of values. An empty set matches
// nothing.
func In(column string, values []any) Predicate {
	return func(alias string) (string, []any) {
		if len(values) == 0 {
			return "1=0", nil
		}
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
		return col(alias, column) + " IN (" + marks + ")", values
	}
}
