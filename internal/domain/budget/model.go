package budget

import (
	"time"

	"github.com/google/uuid"
)

// Budget statuses. Approved and Rejected are terminal; Rejected budgets are
// never reopened.
const (
	StatusDraft         = "draft"
	StatusInAnalysis    = "in_analysis"
	StatusInNegotiation = "in_negotiation"
	StatusApproved      = "approved"
	StatusRejected      = "rejected"
)

// Budget is a priced treatment proposal. FinalValue is always recomputed
// from the items and discount, never trusted from the caller.
type Budget struct {
	ID           uuid.UUID `db:"id" json:"id"`
	PatientID    uuid.UUID `db:"patient_id" json:"patient_id"`
	Status       string    `db:"status" json:"status"`
	Total        float64   `db:"total" json:"total"`
	Discount     float64   `db:"discount" json:"discount"`
	FinalValue   float64   `db:"final_value" json:"final_value"`
	Installments int       `db:"installments" json:"installments"`
	RegisteredBy uuid.UUID `db:"registered_by" json:"registered_by"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`

	Items []*Item `db:"-" json:"items"`
}

// Item is one procedure line on a budget.
type Item struct {
	ID        uuid.UUID `db:"id" json:"id"`
	BudgetID  uuid.UUID `db:"budget_id" json:"budget_id"`
	Procedure string    `db:"procedure" json:"procedure"`
	Region    *string   `db:"region" json:"region,omitempty"`
	Quantity  int       `db:"quantity" json:"quantity"`
	UnitValue float64   `db:"unit_value" json:"unit_value"`
	LineTotal float64   `db:"line_total" json:"line_total"`
}
