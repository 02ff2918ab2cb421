package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReconciliationRun records one committed reconciliation.
type ReconciliationRun struct {
	ID         uuid.UUID `json:"id"`
	Kind       Kind      `json:"kind"`
	AsOf       time.Time `json:"as_of"`
	Source     string    `json:"source"`
	Closed     int       `json:"closed"`
	Inserted   int       `json:"inserted"`
	Updated    int       `json:"updated"`
	Unchanged  int       `json:"unchanged"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Writes is the number of rows the run touched.
func (r ReconciliationRun) Writes() int {
	return r.Closed + r.Inserted + r.Updated
}
