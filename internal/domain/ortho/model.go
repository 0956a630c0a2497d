package ortho

import (
	"time"

	"github.com/google/uuid"

	"github.com/odontocore/clinic/pkg/money"
)

// Contract statuses. Active and Suspended flip back and forth; Completed and
// Cancelled are terminal.
const (
	ContractActive    = "active"
	ContractSuspended = "suspended"
	ContractCompleted = "completed"
	ContractCancelled = "cancelled"
)

// Contract is a long-running orthodontic financing agreement. The monthly
// payment is derived, never stored from caller input.
type Contract struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	PatientID        uuid.UUID  `db:"patient_id" json:"patient_id"`
	TotalValue       float64    `db:"total_value" json:"total_value"`
	DownPayment      float64    `db:"down_payment" json:"down_payment"`
	NumberOfMonths   int        `db:"number_of_months" json:"number_of_months"`
	MonthlyPayment   float64    `db:"monthly_payment" json:"monthly_payment"`
	BillingDay       int        `db:"billing_day" json:"billing_day"`
	StartDate        time.Time  `db:"start_date" json:"start_date"`
	EstimatedEndDate time.Time  `db:"estimated_end_date" json:"estimated_end_date"`
	Status           string     `db:"status" json:"status"`
	SuspendedReason  *string    `db:"suspended_reason" json:"suspended_reason,omitempty"`
	SuspendedAt      *time.Time `db:"suspended_at" json:"suspended_at,omitempty"`
	RegisteredBy     uuid.UUID  `db:"registered_by" json:"registered_by"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// MonthlyPaymentFor derives the installment value of a contract.
func MonthlyPaymentFor(total, down float64, months int) float64 {
	return money.Round2((total - down) / float64(months))
}

// Treatment plan phases, in clinical order. AdvancePhase only moves forward.
var Phases = []string{
	"diagnosis",
	"leveling",
	"alignment",
	"working",
	"space_closure",
	"finishing",
	"retention",
}

// PhaseIndex returns the position of a phase, or -1 for an unknown one.
func PhaseIndex(phase string) int {
	for i, p := range Phases {
		if p == phase {
			return i
		}
	}
	return -1
}

// Arches for aligner tracking.
const (
	ArchUpper = "upper"
	ArchLower = "lower"
)

// Plan tracks the clinical side of a contract: aligner progression, phase,
// and fixed appliance details.
type Plan struct {
	ID                  uuid.UUID  `db:"id" json:"id"`
	ContractID          uuid.UUID  `db:"contract_id" json:"contract_id"`
	Phase               string     `db:"phase" json:"phase"`
	UpperAlignersTotal  int        `db:"upper_aligners_total" json:"upper_aligners_total"`
	UpperAlignerCurrent int        `db:"upper_aligner_current" json:"upper_aligner_current"`
	LowerAlignersTotal  int        `db:"lower_aligners_total" json:"lower_aligners_total"`
	LowerAlignerCurrent int        `db:"lower_aligner_current" json:"lower_aligner_current"`
	ChangeIntervalDays  int        `db:"change_interval_days" json:"change_interval_days"`
	LastChangeDate      *time.Time `db:"last_change_date" json:"last_change_date,omitempty"`
	Archwire            *string    `db:"archwire" json:"archwire,omitempty"`
	Bracket             *string    `db:"bracket" json:"bracket,omitempty"`
	ApplianceInstalled  *time.Time `db:"appliance_installed" json:"appliance_installed,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// NextChangeDate derives when the current aligner should be swapped, or nil
// when no change has been recorded yet or no interval is set.
func (p *Plan) NextChangeDate() *time.Time {
	if p.LastChangeDate == nil || p.ChangeIntervalDays <= 0 {
		return nil
	}
	next := p.LastChangeDate.AddDate(0, 0, p.ChangeIntervalDays)
	return &next
}

// Appointment is one evolution record on a plan. Wire state is captured per
// arch as free-form descriptions; aligner deliveries are a sequence range.
// All of it is stored as supplied, logging a visit never moves the plan
// counters. Scores are 1 to 5.
type Appointment struct {
	ID                    uuid.UUID `db:"id" json:"id"`
	PlanID                uuid.UUID `db:"plan_id" json:"plan_id"`
	ContractID            uuid.UUID `db:"contract_id" json:"contract_id"`
	Date                  time.Time `db:"date" json:"date"`
	UpperArchwire         *string   `db:"upper_archwire" json:"upper_archwire,omitempty"`
	LowerArchwire         *string   `db:"lower_archwire" json:"lower_archwire,omitempty"`
	UpperElastic          *string   `db:"upper_elastic" json:"upper_elastic,omitempty"`
	LowerElastic          *string   `db:"lower_elastic" json:"lower_elastic,omitempty"`
	UpperChain            *string   `db:"upper_chain" json:"upper_chain,omitempty"`
	LowerChain            *string   `db:"lower_chain" json:"lower_chain,omitempty"`
	AlignersDeliveredFrom *int      `db:"aligners_delivered_from" json:"aligners_delivered_from,omitempty"`
	AlignersDeliveredTo   *int      `db:"aligners_delivered_to" json:"aligners_delivered_to,omitempty"`
	NextVisitDays         *int      `db:"next_visit_days" json:"next_visit_days,omitempty"`
	Notes                 string    `db:"notes" json:"notes"`
	HygieneScore          int       `db:"hygiene_score" json:"hygiene_score"`
	ComplianceScore       int       `db:"compliance_score" json:"compliance_score"`
	RegisteredBy          uuid.UUID `db:"registered_by" json:"registered_by"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
}

// Aligner stock statuses. Lost and Damaged are reachable from any
// non-terminal state.
const (
	StockOrdered   = "ordered"
	StockReceived  = "received"
	StockDelivered = "delivered"
	StockInUse     = "in_use"
	StockCompleted = "completed"
	StockLost      = "lost"
	StockDamaged   = "damaged"
)

// stockNext maps each stock status to its allowed forward transition.
var stockNext = map[string]string{
	StockOrdered:   StockReceived,
	StockReceived:  StockDelivered,
	StockDelivered: StockInUse,
	StockInUse:     StockCompleted,
}

func stockTerminal(status string) bool {
	return status == StockCompleted || status == StockLost || status == StockDamaged
}

// StockItem is one physical aligner tracked per plan, arch, and sequence.
type StockItem struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PlanID    uuid.UUID `db:"plan_id" json:"plan_id"`
	Arch      string    `db:"arch" json:"arch"`
	Sequence  int       `db:"sequence" json:"sequence"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// AgingEntry is one contract's overdue position in the aging report.
type AgingEntry struct {
	ContractID    uuid.UUID `json:"contract_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	OverdueAmount float64   `json:"overdue_amount"`
	OverdueCount  int       `json:"overdue_count"`
	DaysOverdue   int       `json:"days_overdue"`
	Severity      string    `json:"severity"`
}

// SeverityFor labels how far behind a contract is.
func SeverityFor(daysOverdue int) string {
	switch {
	case daysOverdue > 30:
		return "critical"
	case daysOverdue > 15:
		return "high"
	case daysOverdue > 10:
		return "moderate"
	default:
		return "low"
	}
}
