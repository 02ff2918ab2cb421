package db

import (
	"time"

	"github.com/cockroachdb/errors"
)

// dateLayouts covers the textual forms SQLite hands back for date values,
// including aggregates that lose the column type.
var dateLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02",
}

// NullDate scans a nullable calendar date from any backend.
type NullDate struct {
	Time  time.Time
	Valid bool
}

// Scan implements sql.Scanner.
func (d *NullDate) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		d.Time, d.Valid = time.Time{}, false
		return nil
	case time.Time:
		d.Time, d.Valid = toDay(v), true
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	default:
		return errors.Newf("cannot scan %T into date", value)
	}
}

func (d *NullDate) parse(value string) error {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			d.Time, d.Valid = toDay(t), true
			return nil
		}
	}
	return errors.Newf("cannot parse date %q", value)
}

// Ptr returns the date or nil.
func (d NullDate) Ptr() *time.Time {
	if !d.Valid {
		return nil
	}
	t := d.Time
	return &t
}

// toDay keeps the calendar date as written, whatever zone it was read in.
func toDay(t time.Time) time.Time {
	y, m, day := t.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

// NullString binds "" as NULL.
func NullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// NullTime binds a nil date as NULL.
func NullTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return toDay(*value)
}
