package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	SearchByName(ctx context.Context, name string, limit, offset int) ([]*Patient, int, error)
	Count(ctx context.Context) (int, error)
	// AdjustAggregates applies deltas to the running totals in one statement,
	// keeping balance_due = total_approved - total_paid. Negative deltas
	// reverse a prior approval or payment.
	AdjustAggregates(ctx context.Context, id uuid.UUID, deltaApproved, deltaPaid float64) error
	// SetAggregates overwrites the running totals with authoritative values
	// during reconciliation.
	SetAggregates(ctx context.Context, id uuid.UUID, totalApproved, totalPaid float64) error
}

type NoteRepository interface {
	Append(ctx context.Context, n *ClinicalNote) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*ClinicalNote, int, error)
}
