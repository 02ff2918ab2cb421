package domain

import (
	"strings"

	"github.com/google/uuid"
)

// Attorney is the attribute payload of a registered attorney. Optional text
// attributes use "" for absent; the store persists "" as NULL.
type Attorney struct {
	Name       string     `json:"name"`
	Phone      string     `json:"phone,omitempty"`
	Email      string     `json:"email,omitempty"`
	Firm       string     `json:"firm,omitempty"`
	Address    string     `json:"address,omitempty"`
	Patents    bool       `json:"patents"`
	Trademarks bool       `json:"trademarks"`
	FirmID     *uuid.UUID `json:"firm_id,omitempty"`
}

// AttorneyVersion is a stored attorney version.
type AttorneyVersion = Version[Attorney]

// AttorneysEqual compares the tracked attributes of two attorneys. FirmID is a
// lookup reference and never causes a new version.
func AttorneysEqual(a, b Attorney) bool {
	return a.Name == b.Name &&
		a.Phone == b.Phone &&
		a.Email == b.Email &&
		a.Firm == b.Firm &&
		a.Address == b.Address &&
		a.Patents == b.Patents &&
		a.Trademarks == b.Trademarks
}

// Validate reports missing required attributes.
func (a Attorney) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return errRequired("name")
	}
	return nil
}
