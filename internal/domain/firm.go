package domain

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Firm is the attribute payload of a registered firm.
type Firm struct {
	Name       string `json:"name"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
	Website    string `json:"website,omitempty"`
	Directors  string `json:"directors,omitempty"`
	Address    string `json:"address,omitempty"`
	Patents    bool   `json:"patents"`
	Trademarks bool   `json:"trademarks"`
}

// FirmVersion is a stored firm version.
type FirmVersion = Version[Firm]

// FirmsEqual compares every attribute of two firms.
func FirmsEqual(a, b Firm) bool {
	return a == b
}

// Validate reports missing required attributes.
func (f Firm) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return errRequired("name")
	}
	return nil
}

func errRequired(field string) error {
	return errors.Wrapf(ErrInvalidSnapshot, "missing required attribute %q", field)
}
