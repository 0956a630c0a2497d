package crm

import (
	"context"

	"github.com/google/uuid"

	"github.com/odontocore/clinic/internal/platform/apperr"
)

type Service struct {
	opportunities Repository
}

func NewService(opportunities Repository) *Service {
	return &Service{opportunities: opportunities}
}

// OpenForBudget returns the id of the open opportunity for a budget, creating
// one when none exists. Idempotent: repeated calls for the same budget hand
// back the same opportunity.
func (s *Service) OpenForBudget(ctx context.Context, patientID, budgetID, createdBy uuid.UUID, value float64, notes *string) (uuid.UUID, error) {
	if existing, err := s.opportunities.GetOpenByBudget(ctx, budgetID); err == nil {
		return existing.ID, nil
	} else if !apperr.IsKind(err, apperr.NotFound) {
		return uuid.Nil, err
	}

	o := &Opportunity{
		PatientID: patientID,
		BudgetID:  budgetID,
		Value:     value,
		Notes:     notes,
		CreatedBy: createdBy,
	}
	if err := s.opportunities.Create(ctx, o); err != nil {
		return uuid.Nil, err
	}
	return o.ID, nil
}

// CloseForBudget closes the open opportunity linked to a budget with the
// given outcome. Missing opportunity is not an error: most budgets are
// approved without ever stalling into negotiation.
func (s *Service) CloseForBudget(ctx context.Context, budgetID uuid.UUID, won bool) error {
	existing, err := s.opportunities.GetOpenByBudget(ctx, budgetID)
	if apperr.IsKind(err, apperr.NotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	status := StatusLost
	if won {
		status = StatusWon
	}
	return s.opportunities.Close(ctx, existing.ID, status)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Opportunity, error) {
	return s.opportunities.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Opportunity, int, error) {
	return s.opportunities.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) ListByStatus(ctx context.Context, status string, limit, offset int) ([]*Opportunity, int, error) {
	if status != StatusOpen && status != StatusWon && status != StatusLost {
		return nil, 0, apperr.New(apperr.Validation, "invalid opportunity status: %s", status)
	}
	return s.opportunities.ListByStatus(ctx, status, limit, offset)
}

// PipelineValue is the total open-opportunity value, consumed by the
// assistant snapshot.
func (s *Service) PipelineValue(ctx context.Context) (float64, error) {
	return s.opportunities.SumOpenValue(ctx)
}
