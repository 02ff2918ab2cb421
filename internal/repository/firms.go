package repository

import (
	"database/sql"

	"github.com/rpattn/regwatch/internal/db"
	"github.com/rpattn/regwatch/internal/domain"
)

// FirmSchema stores firms as reference data, upserted in place.
func FirmSchema() Schema[domain.Firm] {
	return Schema[domain.Firm]{
		Kind:    domain.KindFirm,
		Table:   "firms",
		Columns: []string{"name", "phone", "email", "website", "directors", "address", "patents", "trademarks"},
		Values: func(f domain.Firm) []any {
			return []any{
				f.Name,
				db.NullString(f.Phone),
				db.NullString(f.Email),
				db.NullString(f.Website),
				db.NullString(f.Directors),
				db.NullString(f.Address),
				f.Patents,
				f.Trademarks,
			}
		},
		Scan: func() ([]any, func() domain.Firm) {
			var (
				name                                      string
				phone, email, website, directors, address sql.NullString
				patents, trademarks                       bool
			)
			targets := []any{&name, &phone, &email, &website, &directors, &address, &patents, &trademarks}
			return targets, func() domain.Firm {
				return domain.Firm{
					Name:       name,
					Phone:      phone.String,
					Email:      email.String,
					Website:    website.String,
					Directors:  directors.String,
					Address:    address.String,
					Patents:    patents,
					Trademarks: trademarks,
				}
			}
		},
		Equal:    domain.FirmsEqual,
		Validate: domain.Firm.Validate,
		Name:     func(f domain.Firm) string { return f.Name },
		Policy:   PolicyUpsert,
		Matches:  domain.Firm.Matches,
		Rank: map[string]func(a, b domain.Firm) int{
			"name":        func(a, b domain.Firm) int { return compareFold(a.Name, b.Name) },
			"name_length": func(a, b domain.Firm) int { return compareLength(a.Name, b.Name) },
		},
	}
}
