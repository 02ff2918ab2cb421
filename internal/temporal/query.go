package temporal

import (
	"strings"
	"time"
)

// DefaultAlias is the alias versioned tables are selected under.
const DefaultAlias = "v"

// Query is a SELECT over one versioned table.
type Query struct {
	Table   string
	Columns []string
	Alias   string
	Where   []Predicate
	OrderBy []string
	Limit   int
}

// Select starts a query over table returning columns.
func Select(table string, columns []string) Query {
	return Query{Table: table, Columns: columns, Alias: DefaultAlias}
}

// Filter appends predicates.
func (q Query) Filter(preds ...Predicate) Query {
	q.Where = append(append([]Predicate(nil), q.Where...), preds...)
	return q
}

// Order replaces the ORDER BY columns.
func (q Query) Order(columns ...string) Query {
	q.OrderBy = columns
	return q
}

// AsOfQuery is the point-in-time read: versions valid on date, intersected
// with preds, in a deterministic order.
func AsOfQuery(table string, columns []string, date time.Time, preds ...Predicate) Query {
	return Select(table, columns).
		Filter(AsOf(date)).
		Filter(preds...).
		Order("external_id", "valid_from")
}

// HistoryQuery returns every version of one identity, oldest first. A version
// retracted on its opening day sorts before its replacement.
func HistoryQuery(table string, columns []string, externalID string) Query {
	return Select(table, columns).
		Filter(Identity(externalID)).
		Order("valid_from", "valid_to IS NULL", "valid_to")
}

// SQL renders the statement and its positional args.
func (q Query) SQL() (string, []any) {
	alias := q.Alias
	var b strings.Builder
	b.WriteString("SELECT ")
	for idx, column := range q.Columns {
		if idx > 0 {
			b.WriteString(", ")
		}
		b.WriteString(col(alias, column))
	}
	b.WriteString(" FROM ")
	b.WriteString(q.Table)
	if alias != "" {
		b.WriteString(" ")
		b.WriteString(alias)
	}

	where, args := Render(alias, q.Where...)
	b.WriteString(" WHERE ")
	b.WriteString(where)

	if len(q.OrderBy) > 0 {
		b.WriteString(" ORDER BY ")
		for idx, column := range q.OrderBy {
			if idx > 0 {
				b.WriteString(", ")
			}
			b.WriteString(col(alias, column))
		}
	}
	if q.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}
	return b.String(), args
}
