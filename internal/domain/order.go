package domain

import "strings"

// SortDirection captures ascending or descending ordering.
type SortDirection string

const (
	SortDirectionAsc  SortDirection = "ASC"
	SortDirectionDesc SortDirection = "DESC"
)

// OrderBy is a parsed "+key" / "-key" ordering request.
type OrderBy struct {
	Key       string
	Direction SortDirection
}

// ParseOrderBy splits a prefixed key. A missing prefix means ascending.
func ParseOrderBy(value string) OrderBy {
	value = strings.TrimSpace(value)
	order := OrderBy{Direction: SortDirectionAsc}
	switch {
	case strings.HasPrefix(value, "-"):
		order.Direction = SortDirectionDesc
		value = value[1:]
	case strings.HasPrefix(value, "+"):
		value = value[1:]
	}
	order.Key = strings.ToLower(strings.TrimSpace(value))
	return order
}

// Descending reports whether the ordering is reversed.
func (o OrderBy) Descending() bool {
	return o.Direction == SortDirectionDesc
}

func (o OrderBy) String() string {
	if o.Key == "" {
		return ""
	}
	if o.Descending() {
		return "-" + o.Key
	}
	return "+" + o.Key
}
