package billing

import (
	"time"

	"github.com/google/uuid"

	"github.com/odontocore/clinic/pkg/money"
)

// Installment statuses.
const (
	InstallmentPending   = "pending"
	InstallmentPartial   = "partial"
	InstallmentPaid      = "paid"
	InstallmentOverdue   = "overdue"
	InstallmentCancelled = "cancelled"
)

// Payment methods accepted by the receipt processor.
var ValidPaymentMethods = map[string]bool{
	"cash": true, "debit": true, "credit": true, "pix": true, "transfer": true, "check": true,
}

// Installment maps to the installment table: one payable unit of a budget's
// or contract's total. AmountPaid only ever grows; status is derived from it.
// Provenance is an explicit reference (SourceBudgetID / SourceContractID),
// never inferred from the description text.
type Installment struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	PatientID        uuid.UUID  `db:"patient_id" json:"patient_id"`
	SourceBudgetID   *uuid.UUID `db:"source_budget_id" json:"source_budget_id,omitempty"`
	SourceContractID *uuid.UUID `db:"source_contract_id" json:"source_contract_id,omitempty"`
	Description      string     `db:"description" json:"description"`
	DueDate          time.Time  `db:"due_date" json:"due_date"`
	Amount           float64    `db:"amount" json:"amount"`
	AmountPaid       float64    `db:"amount_paid" json:"amount_paid"`
	Status           string     `db:"status" json:"status"`
	Method           *string    `db:"method" json:"method,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// Remaining returns the unpaid balance of the installment.
func (i *Installment) Remaining() float64 {
	return money.Round2(i.Amount - i.AmountPaid)
}

// Payable reports whether the installment can still receive payments.
func (i *Installment) Payable() bool {
	return i.Status != InstallmentPaid && i.Status != InstallmentCancelled
}

// StatusForPaid derives the status implied by a paid amount.
func StatusForPaid(amount, amountPaid float64) string {
	switch {
	case money.GTE(amountPaid, amount):
		return InstallmentPaid
	case money.Positive(amountPaid):
		return InstallmentPartial
	default:
		return InstallmentPending
	}
}

// PaymentRecord is one entry in an installment's append-only payment history.
type PaymentRecord struct {
	ID            uuid.UUID `db:"id" json:"id"`
	InstallmentID uuid.UUID `db:"installment_id" json:"installment_id"`
	Amount        float64   `db:"amount" json:"amount"`
	Method        string    `db:"method" json:"method"`
	PaidAt        time.Time `db:"paid_at" json:"paid_at"`
	Notes         *string   `db:"notes" json:"notes,omitempty"`
	ReceivedBy    uuid.UUID `db:"received_by" json:"received_by"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Expense mirrors Installment for outgoing money. Paying an expense never
// touches patient aggregates.
type Expense struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Description string    `db:"description" json:"description"`
	Category    string    `db:"category" json:"category"`
	DueDate     time.Time `db:"due_date" json:"due_date"`
	Amount      float64   `db:"amount" json:"amount"`
	AmountPaid  float64   `db:"amount_paid" json:"amount_paid"`
	Status      string    `db:"status" json:"status"`
	Method      *string   `db:"method" json:"method,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Remaining returns the unpaid balance of the expense.
func (e *Expense) Remaining() float64 {
	return money.Round2(e.Amount - e.AmountPaid)
}

// Register session statuses.
const (
	RegisterOpen   = "open"
	RegisterClosed = "closed"
)

// Register entry types.
const (
	EntryIncome  = "income"
	EntryExpense = "expense"
)

// RegisterSession maps to the register_session table. At most one session is
// open per clinic; the balance accumulates from its append-only entries.
// Closing stores the declared balance without reconciling it against the
// running balance; discrepancies are left to manual review.
type RegisterSession struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	Status         string     `db:"status" json:"status"`
	InitialBalance float64    `db:"initial_balance" json:"initial_balance"`
	RunningBalance float64    `db:"running_balance" json:"running_balance"`
	ClosingBalance *float64   `db:"closing_balance" json:"closing_balance,omitempty"`
	Responsible    uuid.UUID  `db:"responsible" json:"responsible"`
	Observations   *string    `db:"observations" json:"observations,omitempty"`
	OpenedAt       time.Time  `db:"opened_at" json:"opened_at"`
	ClosedAt       *time.Time `db:"closed_at" json:"closed_at,omitempty"`
}

// RegisterEntry is an immutable event in a session's transaction log.
type RegisterEntry struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	SessionID   uuid.UUID  `db:"session_id" json:"session_id"`
	Type        string     `db:"type" json:"type"`
	Amount      float64    `db:"amount" json:"amount"`
	Description string     `db:"description" json:"description"`
	ReferenceID *uuid.UUID `db:"reference_id" json:"reference_id,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// OverdueSummary aggregates the overdue installments behind a patient or
// contract: the financial lock and the aging report both read it.
type OverdueSummary struct {
	Total  float64    `json:"total"`
	Count  int        `json:"count"`
	Oldest *time.Time `json:"oldest,omitempty"`
}

// DaysOverdue returns how many days the oldest unpaid installment has been
// overdue as of asOf, or 0 when nothing is overdue.
func (o OverdueSummary) DaysOverdue(asOf time.Time) int {
	if o.Oldest == nil {
		return 0
	}
	days := int(asOf.Sub(*o.Oldest).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
