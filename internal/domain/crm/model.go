package crm

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusOpen = "open"
	StatusWon  = "won"
	StatusLost = "lost"
)

// Opportunity maps to the opportunity table. One is created when a budget
// stalls before approval; budget approval closes it Won, cancellation Lost.
type Opportunity struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	PatientID uuid.UUID  `db:"patient_id" json:"patient_id"`
	BudgetID  uuid.UUID  `db:"budget_id" json:"budget_id"`
	Status    string     `db:"status" json:"status"`
	Value     float64    `db:"value" json:"value"`
	Notes     *string    `db:"notes" json:"notes,omitempty"`
	CreatedBy uuid.UUID  `db:"created_by" json:"created_by"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	ClosedAt  *time.Time `db:"closed_at" json:"closed_at,omitempty"`
}
