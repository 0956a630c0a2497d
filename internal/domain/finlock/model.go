package finlock

import (
	"time"

	"github.com/google/uuid"
)

// LockStatus reports whether a patient is blocked from clinical execution by
// overdue installments.
type LockStatus struct {
	PatientID     uuid.UUID  `json:"patient_id"`
	Locked        bool       `json:"locked"`
	OverdueAmount float64    `json:"overdue_amount"`
	OverdueCount  int        `json:"overdue_count"`
	OldestDueDate *time.Time `json:"oldest_due_date,omitempty"`
}

// OverrideToken is the caller-held proof that a lock was deliberately
// bypassed. It is never stored server-side.
type OverrideToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
