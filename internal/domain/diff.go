package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Field is one named attribute rendered as text.
type Field struct {
	Name  string
	Value string
}

// Fields renders the attorney's tracked attributes in column order.
func (a Attorney) Fields() []Field {
	return []Field{
		{"name", a.Name},
		{"phone", a.Phone},
		{"email", a.Email},
		{"firm", a.Firm},
		{"address", a.Address},
		{"patents", strconv.FormatBool(a.Patents)},
		{"trademarks", strconv.FormatBool(a.Trademarks)},
	}
}

// Fields renders the firm's attributes in column order.
func (f Firm) Fields() []Field {
	return []Field{
		{"name", f.Name},
		{"phone", f.Phone},
		{"email", f.Email},
		{"website", f.Website},
		{"directors", f.Directors},
		{"address", f.Address},
		{"patents", strconv.FormatBool(f.Patents)},
		{"trademarks", strconv.FormatBool(f.Trademarks)},
	}
}

// Fielder is implemented by attribute payloads that can describe themselves.
type Fielder interface {
	Fields() []Field
}

// Change is a single attribute difference between two versions.
type Change struct {
	Field string `json:"field"`
	From  string `json:"from"`
	To    string `json:"to"`
}

func (c Change) String() string {
	return fmt.Sprintf("%s: %q -> %q", c.Field, c.From, c.To)
}

// ChangedFields lists the attributes that differ between base and target,
// in column order.
func ChangedFields[A Fielder](base, target A) []Change {
	before := base.Fields()
	after := target.Fields()
	var changes []Change
	for idx, field := range before {
		if idx >= len(after) {
			break
		}
		if field.Value != after[idx].Value {
			changes = append(changes, Change{Field: field.Name, From: field.Value, To: after[idx].Value})
		}
	}
	return changes
}

// HistoryEntry pairs a version with the changes that produced it.
type HistoryEntry[A Fielder] struct {
	Version Version[A] `json:"version"`
	Changes []Change   `json:"changes,omitempty"`
}

// DescribeHistory annotates an ascending version history with the attribute
// changes between consecutive versions. The first entry carries no changes.
func DescribeHistory[A Fielder](versions []Version[A]) []HistoryEntry[A] {
	entries := make([]HistoryEntry[A], 0, len(versions))
	for idx, version := range versions {
		entry := HistoryEntry[A]{Version: version}
		if idx > 0 {
			entry.Changes = ChangedFields(versions[idx-1].Attrs, version.Attrs)
		}
		entries = append(entries, entry)
	}
	return entries
}

// SummariseChanges renders changes as a single line.
func SummariseChanges(changes []Change) string {
	parts := make([]string, 0, len(changes))
	for _, change := range changes {
		parts = append(parts, change.String())
	}
	return strings.Join(parts, "; ")
}
