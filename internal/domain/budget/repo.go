package budget

import (
	"context"

	"github.com/google/uuid"

	"github.com/odontocore/clinic/pkg/pagination"
)

type Repository interface {
	// Create writes the header and its items; callers wrap it in a
	// transaction so a failed item insert rolls the header back too.
	Create(ctx context.Context, b *Budget) error
	GetByID(ctx context.Context, id uuid.UUID) (*Budget, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, p pagination.Params) ([]*Budget, int, error)
	// Update rewrites the header and replaces the full item set.
	Update(ctx context.Context, b *Budget) error
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
	Delete(ctx context.Context, id uuid.UUID) error
	SumApprovedByPatient(ctx context.Context, patientID uuid.UUID) (float64, error)
}
