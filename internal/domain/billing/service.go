package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/odontocore/clinic/internal/platform/apperr"
	"github.com/odontocore/clinic/internal/platform/db"
	"github.com/odontocore/clinic/pkg/money"
	"github.com/odontocore/clinic/pkg/pagination"
)

// AggregateAdjuster propagates payment totals onto the patient record.
type AggregateAdjuster interface {
	AdjustAggregates(ctx context.Context, id uuid.UUID, deltaApproved, deltaPaid float64) error
}

type Service struct {
	installments InstallmentRepository
	expenses     ExpenseRepository
	register     RegisterRepository
	patients     AggregateAdjuster
}

func NewService(installments InstallmentRepository, expenses ExpenseRepository, register RegisterRepository, patients AggregateAdjuster) *Service {
	return &Service{installments: installments, expenses: expenses, register: register, patients: patients}
}

// PaymentInput carries one payment against an installment.
type PaymentInput struct {
	Amount float64    `json:"amount"`
	Method string     `json:"method"`
	Notes  *string    `json:"notes,omitempty"`
	PaidAt *time.Time `json:"paid_at,omitempty"`
}

// ReceivePayment applies a full or partial payment to an installment. The
// whole cascade runs in one transaction: the installment row is locked,
// amount_paid grows by the payment, a history record is appended, the
// patient's running totals shift, and an income entry lands in the open
// register session when there is one. amount_paid never decreases; a payment
// above the remaining balance is rejected, never clamped.
func (s *Service) ReceivePayment(ctx context.Context, installmentID, receivedBy uuid.UUID, in PaymentInput) (*Installment, error) {
	if !money.Positive(in.Amount) {
		return nil, apperr.New(apperr.Validation, "payment amount must be positive")
	}
	if !ValidPaymentMethods[in.Method] {
		return nil, apperr.New(apperr.Validation, "invalid payment method %q", in.Method)
	}
	paidAt := time.Now()
	if in.PaidAt != nil {
		paidAt = *in.PaidAt
	}

	var out *Installment
	err := db.InTx(ctx, func(ctx context.Context) error {
		inst, err := s.installments.GetByIDForUpdate(ctx, installmentID)
		if err != nil {
			return err
		}
		if !inst.Payable() {
			return apperr.New(apperr.InvalidState, "installment is %s and cannot receive payments", inst.Status)
		}
		if in.Amount > inst.Remaining()+money.Epsilon {
			return apperr.New(apperr.Validation, "payment exceeds remaining balance").
				WithDetails(map[string]interface{}{"remaining": inst.Remaining(), "amount": in.Amount})
		}

		if err := s.installments.ApplyPayment(ctx, installmentID, in.Amount, in.Method); err != nil {
			return err
		}
		rec := &PaymentRecord{
			InstallmentID: installmentID,
			Amount:        in.Amount,
			Method:        in.Method,
			PaidAt:        paidAt,
			Notes:         in.Notes,
			ReceivedBy:    receivedBy,
		}
		if err := s.installments.AddPaymentRecord(ctx, rec); err != nil {
			return err
		}
		if err := s.patients.AdjustAggregates(ctx, inst.PatientID, 0, in.Amount); err != nil {
			return err
		}
		if err := s.recordRegisterEntry(ctx, EntryIncome, in.Amount, inst.Description, &installmentID); err != nil {
			return err
		}

		out, err = s.installments.GetByID(ctx, installmentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("installment_id", installmentID.String()).
		Float64("amount", in.Amount).
		Str("method", in.Method).
		Str("status", out.Status).
		Msg("payment received")
	return out, nil
}

// recordRegisterEntry logs cash flow into the open session. No open session
// is not an error: payments outside register hours still settle.
func (s *Service) recordRegisterEntry(ctx context.Context, entryType string, amount float64, description string, refID *uuid.UUID) error {
	sess, err := s.register.GetOpen(ctx)
	if apperr.IsKind(err, apperr.NotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.register.AddEntry(ctx, &RegisterEntry{
		SessionID:   sess.ID,
		Type:        entryType,
		Amount:      amount,
		Description: description,
		ReferenceID: refID,
	})
}

// CreateInstallment records a standalone receivable not tied to a budget or
// contract, such as a walk-in procedure charge.
func (s *Service) CreateInstallment(ctx context.Context, spec InstallmentSpec) (*Installment, error) {
	if spec.Description == "" {
		return nil, apperr.New(apperr.Validation, "description is required")
	}
	if !money.Positive(spec.Amount) {
		return nil, apperr.New(apperr.Validation, "amount must be positive")
	}
	if spec.PatientID == uuid.Nil {
		return nil, apperr.New(apperr.Validation, "patient_id is required")
	}
	return s.installments.Create(ctx, spec)
}

func (s *Service) GetInstallment(ctx context.Context, id uuid.UUID) (*Installment, error) {
	return s.installments.GetByID(ctx, id)
}

func (s *Service) ListInstallmentsByPatient(ctx context.Context, patientID uuid.UUID, p pagination.Params) ([]*Installment, int, error) {
	return s.installments.ListByPatient(ctx, patientID, p)
}

func (s *Service) ListPayments(ctx context.Context, installmentID uuid.UUID) ([]*PaymentRecord, error) {
	if _, err := s.installments.GetByID(ctx, installmentID); err != nil {
		return nil, err
	}
	return s.installments.ListPayments(ctx, installmentID)
}

// CreateExpense records a payable owed by the clinic.
func (s *Service) CreateExpense(ctx context.Context, e *Expense) (*Expense, error) {
	if e.Description == "" {
		return nil, apperr.New(apperr.Validation, "description is required")
	}
	if !money.Positive(e.Amount) {
		return nil, apperr.New(apperr.Validation, "amount must be positive")
	}
	if e.Category == "" {
		e.Category = "general"
	}
	return s.expenses.Create(ctx, e)
}

// PayExpense applies a payment to an expense and logs an outgoing register
// entry. Patient aggregates are untouched: expenses are clinic money, not
// patient money.
func (s *Service) PayExpense(ctx context.Context, expenseID uuid.UUID, in PaymentInput) (*Expense, error) {
	if !money.Positive(in.Amount) {
		return nil, apperr.New(apperr.Validation, "payment amount must be positive")
	}
	if !ValidPaymentMethods[in.Method] {
		return nil, apperr.New(apperr.Validation, "invalid payment method %q", in.Method)
	}
	var out *Expense
	err := db.InTx(ctx, func(ctx context.Context) error {
		e, err := s.expenses.GetByID(ctx, expenseID)
		if err != nil {
			return err
		}
		if e.Status == InstallmentPaid {
			return apperr.New(apperr.InvalidState, "expense is already paid")
		}
		if in.Amount > e.Remaining()+money.Epsilon {
			return apperr.New(apperr.Validation, "payment exceeds remaining balance")
		}
		if err := s.expenses.ApplyPayment(ctx, expenseID, in.Amount, in.Method); err != nil {
			return err
		}
		if err := s.recordRegisterEntry(ctx, EntryExpense, in.Amount, e.Description, &expenseID); err != nil {
			return err
		}
		out, err = s.expenses.GetByID(ctx, expenseID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) ListExpenses(ctx context.Context, status string, p pagination.Params) ([]*Expense, int, error) {
	return s.expenses.List(ctx, status, p)
}

// OpenRegister opens the clinic's cash register session. Only one session
// may be open at a time.
func (s *Service) OpenRegister(ctx context.Context, responsible uuid.UUID, initialBalance float64, observations *string) (*RegisterSession, error) {
	if initialBalance < 0 {
		return nil, apperr.New(apperr.Validation, "initial balance cannot be negative")
	}
	if _, err := s.register.GetOpen(ctx); err == nil {
		return nil, apperr.New(apperr.Conflict, "a register session is already open")
	} else if !apperr.IsKind(err, apperr.NotFound) {
		return nil, err
	}
	sess, err := s.register.Open(ctx, &RegisterSession{
		InitialBalance: initialBalance,
		Responsible:    responsible,
		Observations:   observations,
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("session_id", sess.ID.String()).Float64("initial_balance", initialBalance).Msg("register opened")
	return sess, nil
}

// CloseRegister closes the open session with the counted balance. The
// declared amount is stored as-is; discrepancies against the running balance
// are for the closing report, not for automatic correction.
func (s *Service) CloseRegister(ctx context.Context, closingBalance float64, observations *string) (*RegisterSession, error) {
	sess, err := s.register.GetOpen(ctx)
	if apperr.IsKind(err, apperr.NotFound) {
		return nil, apperr.New(apperr.InvalidState, "no register session is open")
	}
	if err != nil {
		return nil, err
	}
	closed, err := s.register.Close(ctx, sess.ID, closingBalance, observations)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("session_id", closed.ID.String()).
		Float64("running_balance", closed.RunningBalance).
		Float64("closing_balance", closingBalance).
		Msg("register closed")
	return closed, nil
}

func (s *Service) CurrentRegister(ctx context.Context) (*RegisterSession, error) {
	return s.register.GetOpen(ctx)
}

func (s *Service) RegisterEntries(ctx context.Context, sessionID uuid.UUID) ([]*RegisterEntry, error) {
	if _, err := s.register.GetByID(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.register.ListEntries(ctx, sessionID)
}

func (s *Service) ListRegisterSessions(ctx context.Context, p pagination.Params) ([]*RegisterSession, int, error) {
	return s.register.ListSessions(ctx, p)
}
