package treatment

import (
	"time"

	"github.com/google/uuid"
)

// Treatment item statuses. Transitions are linear and forward-only.
const (
	StatusNotStarted = "not_started"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Item is one executable procedure, materialized from an approved budget
// line. The budget back-reference is how deletion cascades find it.
type Item struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	BudgetID      uuid.UUID  `db:"budget_id" json:"budget_id"`
	BudgetItemID  *uuid.UUID `db:"budget_item_id" json:"budget_item_id,omitempty"`
	PatientID     uuid.UUID  `db:"patient_id" json:"patient_id"`
	Procedure     string     `db:"procedure" json:"procedure"`
	Region        *string    `db:"region" json:"region,omitempty"`
	Status        string     `db:"status" json:"status"`
	ExecutionDate *time.Time `db:"execution_date" json:"execution_date,omitempty"`
	ExecutedBy    *uuid.UUID `db:"executed_by" json:"executed_by,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}
