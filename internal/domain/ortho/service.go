package ortho

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/odontocore/clinic/internal/domain/billing"
	"github.com/odontocore/clinic/internal/platform/apperr"
	"github.com/odontocore/clinic/internal/platform/db"
	"github.com/odontocore/clinic/pkg/money"
	"github.com/odontocore/clinic/pkg/pagination"
)

// InstallmentSource is the slice of the installment repository the contract
// billing side needs.
type InstallmentSource interface {
	CreateBatch(ctx context.Context, specs []billing.InstallmentSpec) ([]*billing.Installment, error)
	CountBySourceContract(ctx context.Context, contractID uuid.UUID) (int, error)
	ListBySourceContract(ctx context.Context, contractID uuid.UUID) ([]*billing.Installment, error)
	OverdueBySourceContract(ctx context.Context, contractID uuid.UUID, asOf time.Time) (billing.OverdueSummary, error)
}

type Service struct {
	contracts    ContractRepository
	plans        PlanRepository
	appointments AppointmentRepository
	stock        StockRepository
	installments InstallmentSource
}

func NewService(contracts ContractRepository, plans PlanRepository, appointments AppointmentRepository,
	stock StockRepository, installments InstallmentSource) *Service {
	return &Service{
		contracts:    contracts,
		plans:        plans,
		appointments: appointments,
		stock:        stock,
		installments: installments,
	}
}

// CreateContract writes the financing agreement. Installments are not
// created here: GenerateInstallments is an explicit second step.
func (s *Service) CreateContract(ctx context.Context, c *Contract) error {
	if c.PatientID == uuid.Nil {
		return apperr.New(apperr.Validation, "patient_id is required")
	}
	if !money.Positive(c.TotalValue) {
		return apperr.New(apperr.Validation, "total value must be positive")
	}
	if c.DownPayment < 0 || c.DownPayment >= c.TotalValue {
		return apperr.New(apperr.Validation, "down payment must be between 0 and the total value")
	}
	if c.NumberOfMonths <= 0 {
		return apperr.New(apperr.Validation, "number of months must be positive")
	}
	if c.BillingDay < 1 || c.BillingDay > 28 {
		return apperr.New(apperr.Validation, "billing day must be between 1 and 28")
	}
	if c.StartDate.IsZero() {
		c.StartDate = time.Now()
	}
	c.MonthlyPayment = MonthlyPaymentFor(c.TotalValue, c.DownPayment, c.NumberOfMonths)
	c.EstimatedEndDate = c.StartDate.AddDate(0, c.NumberOfMonths, 0)
	c.Status = ContractActive
	return s.contracts.Create(ctx, c)
}

func (s *Service) GetContract(ctx context.Context, id uuid.UUID) (*Contract, error) {
	return s.contracts.GetByID(ctx, id)
}

func (s *Service) ListContractsByPatient(ctx context.Context, patientID uuid.UUID, p pagination.Params) ([]*Contract, int, error) {
	return s.contracts.ListByPatient(ctx, patientID, p)
}

// GenerateInstallments materializes the contract's billing schedule: one
// installment of the monthly payment on the billing day of each successive
// month after the start date. Idempotent: a retry that finds any existing
// installments for the contract creates nothing and returns them.
func (s *Service) GenerateInstallments(ctx context.Context, contractID uuid.UUID) ([]*billing.Installment, error) {
	var out []*billing.Installment
	err := db.InTx(ctx, func(ctx context.Context) error {
		c, err := s.contracts.GetByID(ctx, contractID)
		if err != nil {
			return err
		}
		if c.Status == ContractCancelled {
			return apperr.New(apperr.InvalidState, "cancelled contracts have no billing schedule")
		}

		existing, err := s.installments.CountBySourceContract(ctx, contractID)
		if err != nil {
			return err
		}
		if existing > 0 {
			out, err = s.installments.ListBySourceContract(ctx, contractID)
			return err
		}

		specs := make([]billing.InstallmentSpec, 0, c.NumberOfMonths)
		for i := 1; i <= c.NumberOfMonths; i++ {
			specs = append(specs, billing.InstallmentSpec{
				PatientID:        c.PatientID,
				SourceContractID: &c.ID,
				Description:      fmt.Sprintf("Orthodontic installment %d/%d", i, c.NumberOfMonths),
				DueDate:          billingDate(c.StartDate, c.BillingDay, i),
				Amount:           c.MonthlyPayment,
			})
		}
		out, err = s.installments.CreateBatch(ctx, specs)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("contract_id", contractID.String()).
		Int("installments", len(out)).
		Msg("contract installments generated")
	return out, nil
}

// billingDate returns the billing day of the n-th month after start.
func billingDate(start time.Time, billingDay, n int) time.Time {
	return time.Date(start.Year(), start.Month(), billingDay, 0, 0, 0, 0, start.Location()).AddDate(0, n, 0)
}

// Suspend pauses an active contract, recording why and when.
func (s *Service) Suspend(ctx context.Context, id uuid.UUID, reason string) (*Contract, error) {
	if reason == "" {
		return nil, apperr.New(apperr.Validation, "suspension reason is required")
	}
	return s.contracts.SetStatus(ctx, id, ContractActive, ContractSuspended, &reason)
}

// Reactivate resumes a suspended contract, clearing the suspension fields.
func (s *Service) Reactivate(ctx context.Context, id uuid.UUID) (*Contract, error) {
	return s.contracts.SetStatus(ctx, id, ContractSuspended, ContractActive, nil)
}

// Complete closes an active contract as finished.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Contract, error) {
	return s.contracts.SetStatus(ctx, id, ContractActive, ContractCompleted, nil)
}

// CancelContract terminates a contract from any non-terminal state.
func (s *Service) CancelContract(ctx context.Context, id uuid.UUID) (*Contract, error) {
	c, err := s.contracts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status == ContractCompleted || c.Status == ContractCancelled {
		return nil, apperr.New(apperr.InvalidState, "contract is already %s", c.Status)
	}
	return s.contracts.SetStatus(ctx, id, c.Status, ContractCancelled, nil)
}

// CreatePlan attaches the clinical treatment plan to an active contract.
func (s *Service) CreatePlan(ctx context.Context, p *Plan) error {
	c, err := s.contracts.GetByID(ctx, p.ContractID)
	if err != nil {
		return err
	}
	if c.Status != ContractActive {
		return apperr.New(apperr.InvalidState, "contract is %s, plans attach to active contracts", c.Status)
	}
	if p.Phase == "" {
		p.Phase = Phases[0]
	}
	if PhaseIndex(p.Phase) < 0 {
		return apperr.New(apperr.Validation, "unknown phase %q", p.Phase)
	}
	if p.UpperAlignersTotal < 0 || p.LowerAlignersTotal < 0 {
		return apperr.New(apperr.Validation, "aligner totals cannot be negative")
	}
	return s.plans.Create(ctx, p)
}

func (s *Service) GetPlan(ctx context.Context, id uuid.UUID) (*Plan, error) {
	return s.plans.GetByID(ctx, id)
}

func (s *Service) GetPlanByContract(ctx context.Context, contractID uuid.UUID) (*Plan, error) {
	return s.plans.GetByContract(ctx, contractID)
}

// AdvancePhase moves the plan to the next clinical phase. Phases never move
// backwards; retention is the end of the line.
func (s *Service) AdvancePhase(ctx context.Context, planID uuid.UUID) (*Plan, error) {
	p, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	idx := PhaseIndex(p.Phase)
	if idx < 0 {
		return nil, apperr.New(apperr.Persistence, "plan holds unknown phase %q", p.Phase)
	}
	if idx == len(Phases)-1 {
		return nil, apperr.New(apperr.InvalidState, "plan is already in %s", p.Phase)
	}
	p.Phase = Phases[idx+1]
	if err := s.plans.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// AdvanceAligner bumps the arch's current aligner by one and stamps the
// change date. The counter never passes the arch total.
func (s *Service) AdvanceAligner(ctx context.Context, planID uuid.UUID, arch string) (*Plan, error) {
	if arch != ArchUpper && arch != ArchLower {
		return nil, apperr.New(apperr.Validation, "arch must be %s or %s", ArchUpper, ArchLower)
	}
	p, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	switch arch {
	case ArchUpper:
		if p.UpperAlignerCurrent >= p.UpperAlignersTotal {
			return nil, apperr.New(apperr.InvalidState, "upper arch is already at aligner %d of %d",
				p.UpperAlignerCurrent, p.UpperAlignersTotal)
		}
		p.UpperAlignerCurrent++
	case ArchLower:
		if p.LowerAlignerCurrent >= p.LowerAlignersTotal {
			return nil, apperr.New(apperr.InvalidState, "lower arch is already at aligner %d of %d",
				p.LowerAlignerCurrent, p.LowerAlignersTotal)
		}
		p.LowerAlignerCurrent++
	}
	now := time.Now()
	p.LastChangeDate = &now
	if err := s.plans.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateAppliance records the fixed appliance details on the plan.
func (s *Service) UpdateAppliance(ctx context.Context, planID uuid.UUID, archwire, bracket *string, installed *time.Time) (*Plan, error) {
	p, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	p.Archwire = archwire
	p.Bracket = bracket
	p.ApplianceInstalled = installed
	if err := s.plans.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// CreateAppointment appends an evolution record to the contract's plan,
// creating a default plan first when the active contract has none. The
// appointment itself is stored verbatim with no aligner side effects.
func (s *Service) CreateAppointment(ctx context.Context, contractID uuid.UUID, a *Appointment) error {
	if a.HygieneScore < 1 || a.HygieneScore > 5 {
		return apperr.New(apperr.Validation, "hygiene score must be between 1 and 5")
	}
	if a.ComplianceScore < 1 || a.ComplianceScore > 5 {
		return apperr.New(apperr.Validation, "compliance score must be between 1 and 5")
	}
	if (a.AlignersDeliveredFrom == nil) != (a.AlignersDeliveredTo == nil) {
		return apperr.New(apperr.Validation, "aligner delivery needs both ends of the sequence range")
	}
	if a.AlignersDeliveredFrom != nil {
		if *a.AlignersDeliveredFrom < 1 || *a.AlignersDeliveredTo < *a.AlignersDeliveredFrom {
			return apperr.New(apperr.Validation, "aligner delivery range %d to %d is not valid",
				*a.AlignersDeliveredFrom, *a.AlignersDeliveredTo)
		}
	}
	if a.NextVisitDays != nil && *a.NextVisitDays <= 0 {
		return apperr.New(apperr.Validation, "next visit interval must be positive")
	}
	c, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return err
	}
	if c.Status != ContractActive {
		return apperr.New(apperr.InvalidState, "contract is %s, appointments attach to active contracts", c.Status)
	}

	return db.InTx(ctx, func(ctx context.Context) error {
		plan, err := s.plans.GetByContract(ctx, contractID)
		if apperr.IsKind(err, apperr.NotFound) {
			plan = &Plan{ContractID: contractID, Phase: Phases[0]}
			if err := s.plans.Create(ctx, plan); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		a.PlanID = plan.ID
		a.ContractID = contractID
		if a.Date.IsZero() {
			a.Date = time.Now()
		}
		return s.appointments.Create(ctx, a)
	})
}

func (s *Service) ListAppointments(ctx context.Context, planID uuid.UUID, p pagination.Params) ([]*Appointment, int, error) {
	return s.appointments.ListByPlan(ctx, planID, p)
}

// AddStock registers a physical aligner as ordered.
func (s *Service) AddStock(ctx context.Context, planID uuid.UUID, arch string, sequence int) (*StockItem, error) {
	if arch != ArchUpper && arch != ArchLower {
		return nil, apperr.New(apperr.Validation, "arch must be %s or %s", ArchUpper, ArchLower)
	}
	if sequence <= 0 {
		return nil, apperr.New(apperr.Validation, "sequence must be positive")
	}
	if _, err := s.plans.GetByID(ctx, planID); err != nil {
		return nil, err
	}
	item := &StockItem{PlanID: planID, Arch: arch, Sequence: sequence, Status: StockOrdered}
	if err := s.stock.Create(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Service) ListStock(ctx context.Context, planID uuid.UUID) ([]*StockItem, error) {
	return s.stock.ListByPlan(ctx, planID)
}

// SetStockStatus moves an aligner along its lifecycle. Lost and Damaged are
// reachable from any non-terminal state. Marking an aligner InUse pulls the
// plan's arch counter up to that sequence when it is behind, keeping the
// clinical progression and the physical stock in agreement.
func (s *Service) SetStockStatus(ctx context.Context, id uuid.UUID, status string) (*StockItem, error) {
	var out *StockItem
	err := db.InTx(ctx, func(ctx context.Context) error {
		item, err := s.stock.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if stockTerminal(item.Status) {
			return apperr.New(apperr.InvalidState, "aligner is already %s", item.Status)
		}
		allowed := status == stockNext[item.Status] ||
			status == StockLost || status == StockDamaged
		if !allowed {
			return apperr.New(apperr.InvalidTransition, "aligner cannot go from %s to %s", item.Status, status)
		}
		if err := s.stock.SetStatus(ctx, id, status); err != nil {
			return err
		}
		item.Status = status
		out = item

		if status != StockInUse {
			return nil
		}
		plan, err := s.plans.GetByID(ctx, item.PlanID)
		if err != nil {
			return err
		}
		changed := false
		switch item.Arch {
		case ArchUpper:
			if plan.UpperAlignerCurrent < item.Sequence {
				plan.UpperAlignerCurrent = item.Sequence
				changed = true
			}
		case ArchLower:
			if plan.LowerAlignerCurrent < item.Sequence {
				plan.LowerAlignerCurrent = item.Sequence
				changed = true
			}
		}
		if !changed {
			return nil
		}
		now := time.Now()
		plan.LastChangeDate = &now
		return s.plans.Update(ctx, plan)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AgingReport surveys active and suspended contracts for overdue
// installments. Contracts with nothing overdue are omitted.
func (s *Service) AgingReport(ctx context.Context) ([]*AgingEntry, error) {
	var out []*AgingEntry
	now := time.Now()
	for _, status := range []string{ContractActive, ContractSuspended} {
		contracts, err := s.contracts.ListByStatus(ctx, status)
		if err != nil {
			return nil, err
		}
		for _, c := range contracts {
			summary, err := s.installments.OverdueBySourceContract(ctx, c.ID, now)
			if err != nil {
				return nil, err
			}
			if !money.Positive(summary.Total) {
				continue
			}
			days := summary.DaysOverdue(now)
			out = append(out, &AgingEntry{
				ContractID:    c.ID,
				PatientID:     c.PatientID,
				OverdueAmount: money.Round2(summary.Total),
				OverdueCount:  summary.Count,
				DaysOverdue:   days,
				Severity:      SeverityFor(days),
			})
		}
	}
	return out, nil
}
