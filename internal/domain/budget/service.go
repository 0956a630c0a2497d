package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/odontocore/clinic/internal/domain/billing"
	"github.com/odontocore/clinic/internal/domain/patient"
	"github.com/odontocore/clinic/internal/domain/treatment"
	"github.com/odontocore/clinic/internal/platform/apperr"
	"github.com/odontocore/clinic/internal/platform/db"
	"github.com/odontocore/clinic/pkg/money"
	"github.com/odontocore/clinic/pkg/pagination"
)

// InstallmentStore is the slice of the installment repository the approval
// and deletion cascades need.
type InstallmentStore interface {
	CreateBatch(ctx context.Context, specs []billing.InstallmentSpec) ([]*billing.Installment, error)
	ListBySourceBudget(ctx context.Context, budgetID uuid.UUID) ([]*billing.Installment, error)
	DeleteBySourceBudget(ctx context.Context, budgetID uuid.UUID) (int, error)
}

// TreatmentPlanner materializes and removes the executable items backing an
// approved budget.
type TreatmentPlanner interface {
	CreateForBudget(ctx context.Context, specs []treatment.ItemSpec) ([]*treatment.Item, error)
	DeleteForBudget(ctx context.Context, budgetID uuid.UUID) (int, error)
}

// AggregateAdjuster moves the approval and payment totals on the patient.
type AggregateAdjuster interface {
	AdjustAggregates(ctx context.Context, id uuid.UUID, deltaApproved, deltaPaid float64) error
}

// NoteAppender records the audit trail note written on cancellation.
type NoteAppender interface {
	AppendNote(ctx context.Context, n *patient.ClinicalNote) error
}

// OpportunityBridge links budgets to the negotiation pipeline.
type OpportunityBridge interface {
	OpenForBudget(ctx context.Context, patientID, budgetID, createdBy uuid.UUID, value float64, notes *string) (uuid.UUID, error)
	CloseForBudget(ctx context.Context, budgetID uuid.UUID, won bool) error
}

type Service struct {
	budgets       Repository
	installments  InstallmentStore
	treatments    TreatmentPlanner
	patients      AggregateAdjuster
	notes         NoteAppender
	opportunities OpportunityBridge
}

func NewService(budgets Repository, installments InstallmentStore, treatments TreatmentPlanner,
	patients AggregateAdjuster, notes NoteAppender, opportunities OpportunityBridge) *Service {
	return &Service{
		budgets:       budgets,
		installments:  installments,
		treatments:    treatments,
		patients:      patients,
		notes:         notes,
		opportunities: opportunities,
	}
}

// recompute validates the items and rewrites every derived money field.
func recompute(b *Budget) error {
	if len(b.Items) == 0 {
		return apperr.New(apperr.Validation, "budget needs at least one item")
	}
	var total float64
	for _, it := range b.Items {
		if it.Procedure == "" {
			return apperr.New(apperr.Validation, "item procedure is required")
		}
		if it.Quantity <= 0 {
			return apperr.New(apperr.Validation, "item quantity must be positive")
		}
		if !money.Positive(it.UnitValue) {
			return apperr.New(apperr.Validation, "item unit value must be positive")
		}
		it.LineTotal = money.Round2(float64(it.Quantity) * it.UnitValue)
		total += it.LineTotal
	}
	b.Total = money.Round2(total)
	if b.Discount < 0 || b.Discount > b.Total+money.Epsilon {
		return apperr.New(apperr.Validation, "discount must be between 0 and the budget total")
	}
	b.FinalValue = money.Round2(b.Total - b.Discount)
	if b.Installments <= 0 {
		b.Installments = 1
	}
	return nil
}

func (s *Service) Create(ctx context.Context, b *Budget) error {
	if b.PatientID == uuid.Nil {
		return apperr.New(apperr.Validation, "patient_id is required")
	}
	if err := recompute(b); err != nil {
		return err
	}
	// A budget starts as a draft or goes straight into analysis; every other
	// status is reached through its own operation.
	switch b.Status {
	case "":
		b.Status = StatusDraft
	case StatusDraft, StatusInAnalysis:
	default:
		return apperr.New(apperr.Validation, "budget cannot be created as %s", b.Status)
	}
	return db.InTx(ctx, func(ctx context.Context) error {
		return s.budgets.Create(ctx, b)
	})
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Budget, error) {
	return s.budgets.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, p pagination.Params) ([]*Budget, int, error) {
	return s.budgets.ListByPatient(ctx, patientID, p)
}

// Update replaces the items and recomputes the totals. Approved budgets are
// immutable: their value already flowed into installments and aggregates.
func (s *Service) Update(ctx context.Context, id uuid.UUID, items []*Item, discount float64, installments int) (*Budget, error) {
	existing, err := s.budgets.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Status == StatusApproved {
		return nil, apperr.New(apperr.InvalidState, "approved budgets cannot be edited")
	}
	existing.Items = items
	existing.Discount = discount
	existing.Installments = installments
	if err := recompute(existing); err != nil {
		return nil, err
	}
	err = db.InTx(ctx, func(ctx context.Context) error {
		return s.budgets.Update(ctx, existing)
	})
	if err != nil {
		return nil, err
	}
	return existing, nil
}

// Approve runs the materialization cascade in one transaction: the budget
// becomes Approved, every line turns into a treatment item, the final value
// splits into equal installments on successive month boundaries, the
// patient's approved total grows, and any open negotiation closes Won.
// Approving an already-approved budget returns the existing result without
// duplicating any of it.
func (s *Service) Approve(ctx context.Context, id, operatorID uuid.UUID) (*Budget, error) {
	var out *Budget
	err := db.InTx(ctx, func(ctx context.Context) error {
		b, err := s.budgets.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if b.Status == StatusApproved {
			out = b
			return nil
		}
		if b.Status == StatusRejected {
			return apperr.New(apperr.InvalidState, "rejected budgets cannot be approved")
		}

		if err := s.budgets.SetStatus(ctx, id, StatusApproved); err != nil {
			return err
		}

		specs := make([]treatment.ItemSpec, 0, len(b.Items))
		for _, it := range b.Items {
			itemID := it.ID
			specs = append(specs, treatment.ItemSpec{
				BudgetID:     b.ID,
				BudgetItemID: &itemID,
				PatientID:    b.PatientID,
				Procedure:    it.Procedure,
				Region:       it.Region,
			})
		}
		if _, err := s.treatments.CreateForBudget(ctx, specs); err != nil {
			return err
		}

		if err := s.createInstallments(ctx, b); err != nil {
			return err
		}
		if err := s.patients.AdjustAggregates(ctx, b.PatientID, b.FinalValue, 0); err != nil {
			return err
		}
		if err := s.opportunities.CloseForBudget(ctx, b.ID, true); err != nil {
			return err
		}

		b.Status = StatusApproved
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("budget_id", id.String()).
		Float64("final_value", out.FinalValue).
		Int("installments", out.Installments).
		Msg("budget approved")
	return out, nil
}

func (s *Service) createInstallments(ctx context.Context, b *Budget) error {
	shares := money.Shares(b.FinalValue, b.Installments)
	specs := make([]billing.InstallmentSpec, 0, len(shares))
	budgetID := b.ID
	now := time.Now()
	for i, amount := range shares {
		specs = append(specs, billing.InstallmentSpec{
			PatientID:      b.PatientID,
			SourceBudgetID: &budgetID,
			Description:    fmt.Sprintf("Budget installment %d/%d", i+1, len(shares)),
			DueDate:        monthBoundary(now, i+1),
			Amount:         amount,
		})
	}
	_, err := s.installments.CreateBatch(ctx, specs)
	return err
}

// monthBoundary returns the first day of the n-th month after t.
func monthBoundary(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return first.AddDate(0, n, 0)
}

// Cancel rejects a budget, leaving an audit note and closing any open
// negotiation as Lost. No financial reversal happens: use Delete for that.
func (s *Service) Cancel(ctx context.Context, id, operatorID uuid.UUID, reason *string) (*Budget, error) {
	var out *Budget
	err := db.InTx(ctx, func(ctx context.Context) error {
		b, err := s.budgets.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if b.Status == StatusRejected {
			return apperr.New(apperr.InvalidState, "budget is already rejected")
		}
		if err := s.budgets.SetStatus(ctx, id, StatusRejected); err != nil {
			return err
		}
		content := fmt.Sprintf("Budget of %.2f cancelled.", b.FinalValue)
		if reason != nil && *reason != "" {
			content = fmt.Sprintf("Budget of %.2f cancelled: %s", b.FinalValue, *reason)
		}
		category := "budget"
		if err := s.notes.AppendNote(ctx, &patient.ClinicalNote{
			PatientID:    b.PatientID,
			Content:      content,
			Category:     &category,
			RegisteredBy: operatorID,
		}); err != nil {
			return err
		}
		if err := s.opportunities.CloseForBudget(ctx, b.ID, false); err != nil {
			return err
		}
		b.Status = StatusRejected
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the budget and everything materialized from it. For an
// approved budget the patient aggregates are reversed by the final value and
// by whatever was already paid on its installments, atomically with the
// deletes.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	err := db.InTx(ctx, func(ctx context.Context) error {
		b, err := s.budgets.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if b.Status == StatusApproved {
			installments, err := s.installments.ListBySourceBudget(ctx, id)
			if err != nil {
				return err
			}
			var paid float64
			for _, inst := range installments {
				paid += inst.AmountPaid
			}
			if err := s.patients.AdjustAggregates(ctx, b.PatientID, -b.FinalValue, -money.Round2(paid)); err != nil {
				return err
			}
		}
		if _, err := s.installments.DeleteBySourceBudget(ctx, id); err != nil {
			return err
		}
		if _, err := s.treatments.DeleteForBudget(ctx, id); err != nil {
			return err
		}
		return s.budgets.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	log.Info().Str("budget_id", id.String()).Msg("budget deleted")
	return nil
}

// SendToNegotiation opens (or returns) the CRM opportunity for a stalled
// budget and marks it InNegotiation. Terminal budgets are refused.
func (s *Service) SendToNegotiation(ctx context.Context, id, operatorID uuid.UUID, notes *string) (uuid.UUID, error) {
	b, err := s.budgets.GetByID(ctx, id)
	if err != nil {
		return uuid.Nil, err
	}
	if b.Status == StatusApproved || b.Status == StatusRejected {
		return uuid.Nil, apperr.New(apperr.InvalidState, "%s budgets cannot enter negotiation", b.Status)
	}

	var oppID uuid.UUID
	err = db.InTx(ctx, func(ctx context.Context) error {
		oppID, err = s.opportunities.OpenForBudget(ctx, b.PatientID, b.ID, operatorID, b.FinalValue, notes)
		if err != nil {
			return err
		}
		if b.Status != StatusInNegotiation {
			return s.budgets.SetStatus(ctx, id, StatusInNegotiation)
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return oppID, nil
}

// SumApprovedByPatient reports the authoritative approved total used by
// aggregate reconciliation.
func (s *Service) SumApprovedByPatient(ctx context.Context, patientID uuid.UUID) (float64, error) {
	return s.budgets.SumApprovedByPatient(ctx, patientID)
}
