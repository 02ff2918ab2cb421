package temporal

import (
	"strings"
	"time"

	"github.com/rpattn/regwatch/internal/domain"
)

// Correlated is a condition relating a subquery row (inner) to the row of the
// enclosing query (outer).
type Correlated func(outer, inner string) (string, []any)

// Inner applies a plain predicate to the subquery row.
func Inner(pred Predicate) Correlated {
	return func(_, inner string) (string, []any) {
		return pred(inner)
	}
}

// SameIdentity correlates rows of one entity.
func SameIdentity() Correlated {
	return func(outer, inner string) (string, []any) {
		return col(inner, "external_id") + " = " + col(outer, "external_id"), nil
	}
}

// StartsAfter selects subquery rows that began after the outer row.
func StartsAfter() Correlated {
	return func(outer, inner string) (string, []any) {
		return col(inner, "valid_from") + " > " + col(outer, "valid_from"), nil
	}
}

// StartsOnOrBefore selects rows that began no later than date.
func StartsOnOrBefore(date time.Time) Predicate {
	date = domain.Day(date)
	return func(alias string) (string, []any) {
		return col(alias, "valid_from") + " <= ?", []any{date}
	}
}

// Exists holds when some row of table satisfies every condition.
func Exists(table, inner string, conds ...Correlated) Predicate {
	return exists("EXISTS", table, inner, conds)
}

// NotExists holds when no row of table satisfies every condition.
func NotExists(table, inner string, conds ...Correlated) Predicate {
	return exists("NOT EXISTS", table, inner, conds)
}

func exists(keyword, table, inner string, conds []Correlated) Predicate {
	return func(outer string) (string, []any) {
		parts := make([]string, 0, len(conds))
		var args []any
		for _, cond := range conds {
			clause, condArgs := cond(outer, inner)
			parts = append(parts, "("+clause+")")
			args = append(args, condArgs...)
		}
		where := "1=1"
		if len(parts) > 0 {
			where = strings.Join(parts, " AND ")
		}
		return keyword + " (SELECT 1 FROM " + table + " " + inner + " WHERE " + where + ")", args
	}
}
