package patient

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/odontocore/clinic/internal/platform/apperr"
	"github.com/odontocore/clinic/pkg/money"
)

// ApprovedSummer yields the authoritative approved total for a patient,
// implemented by the budget repository.
type ApprovedSummer interface {
	SumApprovedByPatient(ctx context.Context, patientID uuid.UUID) (float64, error)
}

// PaidSummer yields the authoritative paid total for a patient, implemented
// by the installment repository.
type PaidSummer interface {
	SumPaidByPatient(ctx context.Context, patientID uuid.UUID) (float64, error)
}

type Service struct {
	patients Repository
	notes    NoteRepository
	approved ApprovedSummer
	paid     PaidSummer
}

func NewService(patients Repository, notes NoteRepository) *Service {
	return &Service{patients: patients, notes: notes}
}

// SetReconciliationSources wires the authoritative sums used by Reconcile.
// They come from other domains, so main attaches them after construction.
func (s *Service) SetReconciliationSources(approved ApprovedSummer, paid PaidSummer) {
	s.approved = approved
	s.paid = paid
}

func (s *Service) Create(ctx context.Context, p *Patient) error {
	if strings.TrimSpace(p.FullName) == "" {
		return apperr.New(apperr.Validation, "full_name is required")
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) Update(ctx context.Context, p *Patient) error {
	if strings.TrimSpace(p.FullName) == "" {
		return apperr.New(apperr.Validation, "full_name is required")
	}
	return s.patients.Update(ctx, p)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.patients.Delete(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}

func (s *Service) SearchByName(ctx context.Context, name string, limit, offset int) ([]*Patient, int, error) {
	return s.patients.SearchByName(ctx, name, limit, offset)
}

func (s *Service) AppendNote(ctx context.Context, n *ClinicalNote) error {
	if strings.TrimSpace(n.Content) == "" {
		return apperr.New(apperr.Validation, "note content is required")
	}
	if _, err := s.patients.GetByID(ctx, n.PatientID); err != nil {
		return err
	}
	return s.notes.Append(ctx, n)
}

func (s *Service) ListNotes(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*ClinicalNote, int, error) {
	return s.notes.ListByPatient(ctx, patientID, limit, offset)
}

// Reconcile recomputes a patient's running aggregates from the authoritative
// sums over approved budgets and installment payments, overwriting any drift
// the incremental counters accumulated. Explicit operation, never a hidden
// background job.
func (s *Service) Reconcile(ctx context.Context, patientID uuid.UUID) (*ReconcileResult, error) {
	if s.approved == nil || s.paid == nil {
		return nil, apperr.New(apperr.InvalidState, "reconciliation sources not configured")
	}

	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}

	approved, err := s.approved.SumApprovedByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	paid, err := s.paid.SumPaidByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}

	result := &ReconcileResult{
		PatientID:        patientID,
		PrevApproved:     p.TotalApproved,
		PrevPaid:         p.TotalPaid,
		ComputedApproved: money.Round2(approved),
		ComputedPaid:     money.Round2(paid),
	}
	result.Drifted = !money.Equal(p.TotalApproved, approved) ||
		!money.Equal(p.TotalPaid, paid) ||
		!money.Equal(p.BalanceDue, approved-paid)

	if result.Drifted {
		if err := s.patients.SetAggregates(ctx, patientID, result.ComputedApproved, result.ComputedPaid); err != nil {
			return nil, err
		}
	}
	return result, nil
}
