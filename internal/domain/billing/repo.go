package billing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/odontocore/clinic/pkg/pagination"
)

// InstallmentSpec carries the inputs for creating a single installment.
type InstallmentSpec struct {
	PatientID        uuid.UUID
	SourceBudgetID   *uuid.UUID
	SourceContractID *uuid.UUID
	Description      string
	DueDate          time.Time
	Amount           float64
}

// InstallmentRepository persists installments and their payment history.
type InstallmentRepository interface {
	Create(ctx context.Context, spec InstallmentSpec) (*Installment, error)
	CreateBatch(ctx context.Context, specs []InstallmentSpec) ([]*Installment, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Installment, error)
	// GetByIDForUpdate locks the row inside the ambient transaction so
	// concurrent payments against the same installment serialize.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Installment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, p pagination.Params) ([]*Installment, int, error)
	ListBySourceBudget(ctx context.Context, budgetID uuid.UUID) ([]*Installment, error)
	ListBySourceContract(ctx context.Context, contractID uuid.UUID) ([]*Installment, error)
	CountBySourceContract(ctx context.Context, contractID uuid.UUID) (int, error)
	DeleteBySourceBudget(ctx context.Context, budgetID uuid.UUID) (int, error)

	// ApplyPayment adds amount to amount_paid and rederives the status in
	// one statement. The caller validates the amount beforehand.
	ApplyPayment(ctx context.Context, id uuid.UUID, amount float64, method string) error
	AddPaymentRecord(ctx context.Context, rec *PaymentRecord) error
	ListPayments(ctx context.Context, installmentID uuid.UUID) ([]*PaymentRecord, error)

	SumPaidByPatient(ctx context.Context, patientID uuid.UUID) (float64, error)
	// SumPaymentsBetween totals payment records with paid_at in [from, to).
	SumPaymentsBetween(ctx context.Context, from, to time.Time) (float64, error)
	OverdueByPatient(ctx context.Context, patientID uuid.UUID, asOf time.Time) (OverdueSummary, error)
	OverdueBySourceContract(ctx context.Context, contractID uuid.UUID, asOf time.Time) (OverdueSummary, error)
	OverdueTotal(ctx context.Context, asOf time.Time) (OverdueSummary, error)
}

// ExpenseRepository persists clinic expenses.
type ExpenseRepository interface {
	Create(ctx context.Context, e *Expense) (*Expense, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Expense, error)
	List(ctx context.Context, status string, p pagination.Params) ([]*Expense, int, error)
	ApplyPayment(ctx context.Context, id uuid.UUID, amount float64, method string) error
}

// RegisterRepository persists cash register sessions and their entries.
type RegisterRepository interface {
	Open(ctx context.Context, s *RegisterSession) (*RegisterSession, error)
	GetByID(ctx context.Context, id uuid.UUID) (*RegisterSession, error)
	// GetOpen returns the clinic's single open session, or NotFound.
	GetOpen(ctx context.Context) (*RegisterSession, error)
	Close(ctx context.Context, id uuid.UUID, closingBalance float64, observations *string) (*RegisterSession, error)
	AddEntry(ctx context.Context, e *RegisterEntry) error
	ListEntries(ctx context.Context, sessionID uuid.UUID) ([]*RegisterEntry, error)
	ListSessions(ctx context.Context, p pagination.Params) ([]*RegisterSession, int, error)
}
