package ortho

import (
	"context"

	"github.com/google/uuid"

	"github.com/odontocore/clinic/pkg/pagination"
)

type ContractRepository interface {
	Create(ctx context.Context, c *Contract) error
	GetByID(ctx context.Context, id uuid.UUID) (*Contract, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, p pagination.Params) ([]*Contract, int, error)
	ListByStatus(ctx context.Context, status string) ([]*Contract, error)
	// SetStatus transitions only when the contract holds fromStatus.
	SetStatus(ctx context.Context, id uuid.UUID, fromStatus, toStatus string, reason *string) (*Contract, error)
}

type PlanRepository interface {
	Create(ctx context.Context, p *Plan) error
	GetByID(ctx context.Context, id uuid.UUID) (*Plan, error)
	// GetByContract returns the contract's plan, or NotFound.
	GetByContract(ctx context.Context, contractID uuid.UUID) (*Plan, error)
	Update(ctx context.Context, p *Plan) error
}

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	ListByPlan(ctx context.Context, planID uuid.UUID, p pagination.Params) ([]*Appointment, int, error)
}

type StockRepository interface {
	Create(ctx context.Context, s *StockItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*StockItem, error)
	ListByPlan(ctx context.Context, planID uuid.UUID) ([]*StockItem, error)
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
}
