package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patient table. The three running aggregates are
// maintained incrementally inside every approval/payment/deletion
// transaction; BalanceDue must always equal TotalApproved - TotalPaid.
type Patient struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	FullName      string     `db:"full_name" json:"full_name"`
	Document      *string    `db:"document" json:"document,omitempty"`
	Phone         *string    `db:"phone" json:"phone,omitempty"`
	Email         *string    `db:"email" json:"email,omitempty"`
	BirthDate     *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	TotalApproved float64    `db:"total_approved" json:"total_approved"`
	TotalPaid     float64    `db:"total_paid" json:"total_paid"`
	BalanceDue    float64    `db:"balance_due" json:"balance_due"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// ClinicalNote is one entry in a patient's append-only note history. Notes
// are written by operators and by the treatment tracker on conclusion.
type ClinicalNote struct {
	ID           uuid.UUID `db:"id" json:"id"`
	PatientID    uuid.UUID `db:"patient_id" json:"patient_id"`
	Content      string    `db:"content" json:"content"`
	Category     *string   `db:"category" json:"category,omitempty"`
	RegisteredBy uuid.UUID `db:"registered_by" json:"registered_by"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// ReconcileResult reports an aggregate-drift repair for one patient.
type ReconcileResult struct {
	PatientID        uuid.UUID `json:"patient_id"`
	PrevApproved     float64   `json:"prev_approved"`
	PrevPaid         float64   `json:"prev_paid"`
	ComputedApproved float64   `json:"computed_approved"`
	ComputedPaid     float64   `json:"computed_paid"`
	Drifted          bool      `json:"drifted"`
}
