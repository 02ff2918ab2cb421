package domain

import "strings"

// ParseRegisteredAs maps the register's "Registered as" text to capability
// flags, e.g. "Patents, Trade marks".
func ParseRegisteredAs(value string) (patents, trademarks bool) {
	lower := strings.ToLower(value)
	return strings.Contains(lower, "patent"), strings.Contains(lower, "trade mark")
}

// FormatRegisteredAs is the inverse of ParseRegisteredAs.
func FormatRegisteredAs(patents, trademarks bool) string {
	parts := make([]string, 0, 2)
	if patents {
		parts = append(parts, "Patents")
	}
	if trademarks {
		parts = append(parts, "Trade marks")
	}
	return strings.Join(parts, ", ")
}
