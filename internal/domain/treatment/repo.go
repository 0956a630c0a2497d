package treatment

import (
	"context"

	"github.com/google/uuid"

	"github.com/odontocore/clinic/pkg/pagination"
)

// ItemSpec carries the inputs for materializing one treatment item.
type ItemSpec struct {
	BudgetID     uuid.UUID
	BudgetItemID *uuid.UUID
	PatientID    uuid.UUID
	Procedure    string
	Region       *string
}

type Repository interface {
	CreateBatch(ctx context.Context, specs []ItemSpec) ([]*Item, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Item, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, p pagination.Params) ([]*Item, int, error)
	ListByBudget(ctx context.Context, budgetID uuid.UUID) ([]*Item, error)
	// SetStatus transitions the item only when it currently holds
	// fromStatus; a zero-row update reports the stale read.
	SetStatus(ctx context.Context, id uuid.UUID, fromStatus, toStatus string, executedBy *uuid.UUID) (*Item, error)
	DeleteByBudget(ctx context.Context, budgetID uuid.UUID) (int, error)
}
