package repository

import (
	"database/sql"

	"github.com/google/uuid"
	"github.com/rpattn/regwatch/internal/db"
	"github.com/rpattn/regwatch/internal/domain"
)

// AttorneySchema stores attorneys as temporal versions.
func AttorneySchema() Schema[domain.Attorney] {
	return Schema[domain.Attorney]{
		Kind:    domain.KindAttorney,
		Table:   "attorneys",
		Columns: []string{"name", "phone", "email", "firm", "address", "patents", "trademarks", "firm_id"},
		Values: func(a domain.Attorney) []any {
			firmID := uuid.NullUUID{}
			if a.FirmID != nil {
				firmID = uuid.NullUUID{UUID: *a.FirmID, Valid: true}
			}
			return []any{
				a.Name,
				db.NullString(a.Phone),
				db.NullString(a.Email),
				db.NullString(a.Firm),
				db.NullString(a.Address),
				a.Patents,
				a.Trademarks,
				firmID,
			}
		},
		Scan: func() ([]any, func() domain.Attorney) {
			var (
				name                        string
				phone, email, firm, address sql.NullString
				patents, trademarks         bool
				firmID                      uuid.NullUUID
			)
			targets := []any{&name, &phone, &email, &firm, &address, &patents, &trademarks, &firmID}
			return targets, func() domain.Attorney {
				a := domain.Attorney{
					Name:       name,
					Phone:      phone.String,
					Email:      email.String,
					Firm:       firm.String,
					Address:    address.String,
					Patents:    patents,
					Trademarks: trademarks,
				}
				if firmID.Valid {
					id := firmID.UUID
					a.FirmID = &id
				}
				return a
			}
		},
		Equal:    domain.AttorneysEqual,
		Validate: domain.Attorney.Validate,
		Name:     func(a domain.Attorney) string { return a.Name },
		Policy:   PolicyTemporal,
		Tracked:  func(a domain.Attorney) string { return a.Firm },
		Matches:  domain.Attorney.Matches,
		Rank: map[string]func(a, b domain.Attorney) int{
			"name":        func(a, b domain.Attorney) int { return compareFold(a.Name, b.Name) },
			"name_length": func(a, b domain.Attorney) int { return compareLength(a.Name, b.Name) },
			"firm":        func(a, b domain.Attorney) int { return compareFold(a.Firm, b.Firm) },
		},
	}
}
