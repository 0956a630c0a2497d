package treatment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/odontocore/clinic/internal/domain/patient"
	"github.com/odontocore/clinic/internal/platform/apperr"
	"github.com/odontocore/clinic/internal/platform/db"
	"github.com/odontocore/clinic/pkg/pagination"
)

// ExecutionGate decides whether clinical execution may proceed for a
// patient. The financial lock service satisfies it.
type ExecutionGate interface {
	Authorize(ctx context.Context, patientID uuid.UUID, overrideToken string) error
	VerifyPIN(pin string) error
}

// NoteAppender records the clinical note written on conclusion.
type NoteAppender interface {
	AppendNote(ctx context.Context, n *patient.ClinicalNote) error
}

type Service struct {
	items Repository
	gate  ExecutionGate
	notes NoteAppender
}

func NewService(items Repository, gate ExecutionGate, notes NoteAppender) *Service {
	return &Service{items: items, gate: gate, notes: notes}
}

// ExecInput carries the two execution gates: the operator's PIN signature
// and, for financially locked patients, the override token.
type ExecInput struct {
	PIN           string  `json:"pin"`
	OverrideToken string  `json:"override_token,omitempty"`
	Note          *string `json:"note,omitempty"`
}

// CreateForBudget materializes treatment items from approved budget lines.
// Intended to run inside the approval transaction.
func (s *Service) CreateForBudget(ctx context.Context, specs []ItemSpec) ([]*Item, error) {
	for _, spec := range specs {
		if spec.Procedure == "" {
			return nil, apperr.New(apperr.Validation, "procedure is required")
		}
		if spec.PatientID == uuid.Nil || spec.BudgetID == uuid.Nil {
			return nil, apperr.New(apperr.Validation, "patient_id and budget_id are required")
		}
	}
	return s.items.CreateBatch(ctx, specs)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Item, error) {
	return s.items.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, p pagination.Params) ([]*Item, int, error) {
	return s.items.ListByPatient(ctx, patientID, p)
}

func (s *Service) ListByBudget(ctx context.Context, budgetID uuid.UUID) ([]*Item, error) {
	return s.items.ListByBudget(ctx, budgetID)
}

// DeleteForBudget removes the items materialized from a budget. Part of the
// budget deletion cascade.
func (s *Service) DeleteForBudget(ctx context.Context, budgetID uuid.UUID) (int, error) {
	return s.items.DeleteByBudget(ctx, budgetID)
}

// authorize runs both gates. PIN confirmation applies to every execution;
// the financial lock additionally demands an override token when the
// patient has overdue installments.
func (s *Service) authorize(ctx context.Context, patientID uuid.UUID, in ExecInput) error {
	if err := s.gate.VerifyPIN(in.PIN); err != nil {
		return err
	}
	return s.gate.Authorize(ctx, patientID, in.OverrideToken)
}

// Start moves an item from NotStarted to InProgress.
func (s *Service) Start(ctx context.Context, id, operatorID uuid.UUID, in ExecInput) (*Item, error) {
	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, item.PatientID, in); err != nil {
		return nil, err
	}
	updated, err := s.items.SetStatus(ctx, id, StatusNotStarted, StatusInProgress, &operatorID)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("item_id", id.String()).
		Str("procedure", updated.Procedure).
		Msg("treatment started")
	return updated, nil
}

// Conclude moves an item from InProgress to Completed and appends the
// clinical note in the same transaction. A missing note gets a generated
// default so the chart always records the execution.
func (s *Service) Conclude(ctx context.Context, id, operatorID uuid.UUID, in ExecInput) (*Item, error) {
	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, item.PatientID, in); err != nil {
		return nil, err
	}

	var updated *Item
	err = db.InTx(ctx, func(ctx context.Context) error {
		updated, err = s.items.SetStatus(ctx, id, StatusInProgress, StatusCompleted, &operatorID)
		if err != nil {
			return err
		}
		content := fmt.Sprintf("Procedure %q concluded.", updated.Procedure)
		if in.Note != nil && *in.Note != "" {
			content = *in.Note
		}
		category := "treatment"
		return s.notes.AppendNote(ctx, &patient.ClinicalNote{
			PatientID:    updated.PatientID,
			Content:      content,
			Category:     &category,
			RegisteredBy: operatorID,
		})
	})
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("item_id", id.String()).
		Str("procedure", updated.Procedure).
		Msg("treatment concluded")
	return updated, nil
}
