package crm

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, o *Opportunity) error
	GetByID(ctx context.Context, id uuid.UUID) (*Opportunity, error)
	// GetOpenByBudget returns the open opportunity linked to a budget, or a
	// NotFound error when none exists. At most one can be open per budget.
	GetOpenByBudget(ctx context.Context, budgetID uuid.UUID) (*Opportunity, error)
	Close(ctx context.Context, id uuid.UUID, status string) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Opportunity, int, error)
	ListByStatus(ctx context.Context, status string, limit, offset int) ([]*Opportunity, int, error)
	// SumOpenValue returns the total value of all open opportunities, the
	// negotiation pipeline value used by the insights snapshot.
	SumOpenValue(ctx context.Context) (float64, error)
}
