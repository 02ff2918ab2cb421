package domain

import "strings"

// Filter restricts queries to entities holding the given capabilities. Unset
// flags do not restrict.
type Filter struct {
	Patents    bool
	Trademarks bool
}

// ParseFilter reads the comma separated filter tokens accepted by the query
// surfaces: "pat" and "tm". Unknown tokens are ignored.
func ParseFilter(value string) Filter {
	var f Filter
	for _, token := range strings.Split(value, ",") {
		switch strings.ToLower(strings.TrimSpace(token)) {
		case "pat", "patent", "patents":
			f.Patents = true
		case "tm", "trademark", "trademarks", "trade marks":
			f.Trademarks = true
		}
	}
	return f
}

// IsZero reports whether the filter restricts nothing.
func (f Filter) IsZero() bool {
	return !f.Patents && !f.Trademarks
}

func (f Filter) admits(patents, trademarks bool) bool {
	return (!f.Patents || patents) && (!f.Trademarks || trademarks)
}

// Matches reports whether the attorney holds every filtered capability.
func (a Attorney) Matches(f Filter) bool {
	return f.admits(a.Patents, a.Trademarks)
}

// Matches reports whether the firm holds every filtered capability.
func (f Firm) Matches(filter Filter) bool {
	return filter.admits(f.Patents, f.Trademarks)
}
