package domain

import (
	"time"

	"github.com/cockroachdb/errors"
)

// DateLayout is the calendar date format used on every external surface.
const DateLayout = "2006-01-02"

// Day truncates t to a UTC calendar date. Every date stored or compared by the
// temporal layer passes through here so that values bind identically on all
// backends.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the current calendar date.
func Today() time.Time {
	return Day(time.Now())
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid date %q", value)
	}
	return t, nil
}

// FormatDate renders a calendar date, or "" for nil.
func FormatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(DateLayout)
}

// Window is an inclusive range of calendar dates.
type Window struct {
	First time.Time
	Last  time.Time
}

// NewWindow builds a window and rejects inverted ranges.
func NewWindow(first, last time.Time) (Window, error) {
	first, last = Day(first), Day(last)
	if first.After(last) {
		return Window{}, errors.Newf("first date %s is after last date %s", first.Format(DateLayout), last.Format(DateLayout))
	}
	return Window{First: first, Last: last}, nil
}

// DefaultWindow is the week ending on last.
func DefaultWindow(last time.Time) Window {
	last = Day(last)
	return Window{First: last.AddDate(0, 0, -7), Last: last}
}
