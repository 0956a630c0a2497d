package ortho

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/odontocore/clinic/internal/domain/billing"
	"github.com/odontocore/clinic/internal/platform/apperr"
	"github.com/odontocore/clinic/internal/platform/db"
	"github.com/odontocore/clinic/pkg/money"
	"github.com/odontocore/clinic/pkg/pagination"
)

type stubTx struct{ pgx.Tx }

func txContext() context.Context {
	return context.WithValue(context.Background(), db.DBTxKey, stubTx{})
}

// -- Mocks --

type mockContractRepo struct {
	items map[uuid.UUID]*Contract
}

func newMockContractRepo() *mockContractRepo {
	return &mockContractRepo{items: make(map[uuid.UUID]*Contract)}
}

func (m *mockContractRepo) Create(_ context.Context, c *Contract) error {
	c.ID = uuid.New()
	m.items[c.ID] = c
	return nil
}

func (m *mockContractRepo) GetByID(_ context.Context, id uuid.UUID) (*Contract, error) {
	c, ok := m.items[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "contract not found")
	}
	cp := *c
	return &cp, nil
}

func (m *mockContractRepo) ListByPatient(_ context.Context, patientID uuid.UUID, _ pagination.Params) ([]*Contract, int, error) {
	var out []*Contract
	for _, c := range m.items {
		if c.PatientID == patientID {
			out = append(out, c)
		}
	}
	return out, len(out), nil
}

func (m *mockContractRepo) ListByStatus(_ context.Context, status string) ([]*Contract, error) {
	var out []*Contract
	for _, c := range m.items {
		if c.Status == status {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockContractRepo) SetStatus(_ context.Context, id uuid.UUID, fromStatus, toStatus string, reason *string) (*Contract, error) {
	c, ok := m.items[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "contract not found")
	}
	if c.Status != fromStatus {
		return nil, apperr.New(apperr.InvalidTransition, "contract is not %s", fromStatus)
	}
	c.Status = toStatus
	if toStatus == ContractSuspended {
		now := time.Now()
		c.SuspendedReason = reason
		c.SuspendedAt = &now
	} else {
		c.SuspendedReason = nil
		c.SuspendedAt = nil
	}
	cp := *c
	return &cp, nil
}

type mockPlanRepo struct {
	items map[uuid.UUID]*Plan
}

func newMockPlanRepo() *mockPlanRepo {
	return &mockPlanRepo{items: make(map[uuid.UUID]*Plan)}
}

func (m *mockPlanRepo) Create(_ context.Context, p *Plan) error {
	for _, existing := range m.items {
		if existing.ContractID == p.ContractID {
			return apperr.New(apperr.Conflict, "contract already has a treatment plan")
		}
	}
	p.ID = uuid.New()
	m.items[p.ID] = p
	return nil
}

func (m *mockPlanRepo) GetByID(_ context.Context, id uuid.UUID) (*Plan, error) {
	p, ok := m.items[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "treatment plan not found")
	}
	cp := *p
	return &cp, nil
}

func (m *mockPlanRepo) GetByContract(_ context.Context, contractID uuid.UUID) (*Plan, error) {
	for _, p := range m.items {
		if p.ContractID == contractID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperr.New(apperr.NotFound, "treatment plan not found")
}

func (m *mockPlanRepo) Update(_ context.Context, p *Plan) error {
	if _, ok := m.items[p.ID]; !ok {
		return apperr.New(apperr.NotFound, "treatment plan not found")
	}
	cp := *p
	m.items[p.ID] = &cp
	return nil
}

type mockAppointmentRepo struct {
	items []*Appointment
}

func (m *mockAppointmentRepo) Create(_ context.Context, a *Appointment) error {
	a.ID = uuid.New()
	m.items = append(m.items, a)
	return nil
}

func (m *mockAppointmentRepo) ListByPlan(_ context.Context, planID uuid.UUID, _ pagination.Params) ([]*Appointment, int, error) {
	var out []*Appointment
	for _, a := range m.items {
		if a.PlanID == planID {
			out = append(out, a)
		}
	}
	return out, len(out), nil
}

type mockStockRepo struct {
	items map[uuid.UUID]*StockItem
}

func newMockStockRepo() *mockStockRepo {
	return &mockStockRepo{items: make(map[uuid.UUID]*StockItem)}
}

func (m *mockStockRepo) Create(_ context.Context, s *StockItem) error {
	for _, existing := range m.items {
		if existing.PlanID == s.PlanID && existing.Arch == s.Arch && existing.Sequence == s.Sequence {
			return apperr.New(apperr.Conflict, "aligner %s/%d already tracked for this plan", s.Arch, s.Sequence)
		}
	}
	s.ID = uuid.New()
	m.items[s.ID] = s
	return nil
}

func (m *mockStockRepo) GetByID(_ context.Context, id uuid.UUID) (*StockItem, error) {
	s, ok := m.items[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "stock item not found")
	}
	cp := *s
	return &cp, nil
}

func (m *mockStockRepo) ListByPlan(_ context.Context, planID uuid.UUID) ([]*StockItem, error) {
	var out []*StockItem
	for _, s := range m.items {
		if s.PlanID == planID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockStockRepo) SetStatus(_ context.Context, id uuid.UUID, status string) error {
	s, ok := m.items[id]
	if !ok {
		return apperr.New(apperr.NotFound, "stock item not found")
	}
	s.Status = status
	return nil
}

type mockInstallmentSource struct {
	items map[uuid.UUID]*billing.Installment
}

func newMockInstallmentSource() *mockInstallmentSource {
	return &mockInstallmentSource{items: make(map[uuid.UUID]*billing.Installment)}
}

func (m *mockInstallmentSource) CreateBatch(_ context.Context, specs []billing.InstallmentSpec) ([]*billing.Installment, error) {
	var out []*billing.Installment
	for _, spec := range specs {
		inst := &billing.Installment{
			ID:               uuid.New(),
			PatientID:        spec.PatientID,
			SourceContractID: spec.SourceContractID,
			Description:      spec.Description,
			DueDate:          spec.DueDate,
			Amount:           spec.Amount,
			Status:           billing.InstallmentPending,
		}
		m.items[inst.ID] = inst
		out = append(out, inst)
	}
	return out, nil
}

func (m *mockInstallmentSource) forContract(contractID uuid.UUID) []*billing.Installment {
	var out []*billing.Installment
	for _, inst := range m.items {
		if inst.SourceContractID != nil && *inst.SourceContractID == contractID {
			out = append(out, inst)
		}
	}
	return out
}

func (m *mockInstallmentSource) CountBySourceContract(_ context.Context, contractID uuid.UUID) (int, error) {
	return len(m.forContract(contractID)), nil
}

func (m *mockInstallmentSource) ListBySourceContract(_ context.Context, contractID uuid.UUID) ([]*billing.Installment, error) {
	return m.forContract(contractID), nil
}

func (m *mockInstallmentSource) OverdueBySourceContract(_ context.Context, contractID uuid.UUID, asOf time.Time) (billing.OverdueSummary, error) {
	var s billing.OverdueSummary
	for _, inst := range m.forContract(contractID) {
		if inst.Payable() && inst.DueDate.Before(asOf) {
			s.Total = money.Round2(s.Total + inst.Amount)
			s.Count++
			if s.Oldest == nil || inst.DueDate.Before(*s.Oldest) {
				due := inst.DueDate
				s.Oldest = &due
			}
		}
	}
	return s, nil
}

type testEnv struct {
	svc          *Service
	contracts    *mockContractRepo
	plans        *mockPlanRepo
	appointments *mockAppointmentRepo
	stock        *mockStockRepo
	installments *mockInstallmentSource
}

func newTestEnv() *testEnv {
	env := &testEnv{
		contracts:    newMockContractRepo(),
		plans:        newMockPlanRepo(),
		appointments: &mockAppointmentRepo{},
		stock:        newMockStockRepo(),
		installments: newMockInstallmentSource(),
	}
	env.svc = NewService(env.contracts, env.plans, env.appointments, env.stock, env.installments)
	return env
}

func seedContract(t *testing.T, env *testEnv) *Contract {
	t.Helper()
	c := &Contract{
		PatientID:      uuid.New(),
		TotalValue:     6000,
		DownPayment:    600,
		NumberOfMonths: 18,
		BillingDay:     10,
		RegisteredBy:   uuid.New(),
	}
	if err := env.svc.CreateContract(txContext(), c); err != nil {
		t.Fatalf("seed contract: %v", err)
	}
	return c
}

func seedPlan(t *testing.T, env *testEnv, contractID uuid.UUID, upper, lower int) *Plan {
	t.Helper()
	p := &Plan{
		ContractID:         contractID,
		UpperAlignersTotal: upper,
		LowerAlignersTotal: lower,
		ChangeIntervalDays: 14,
	}
	if err := env.svc.CreatePlan(txContext(), p); err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	return p
}

// -- Tests --

func TestCreateContract_DerivesMonthlyPayment(t *testing.T) {
	env := newTestEnv()
	c := seedContract(t, env)

	if !money.Equal(c.MonthlyPayment, 300) {
		t.Errorf("monthly payment = %.2f, want 300", c.MonthlyPayment)
	}
	if c.Status != ContractActive {
		t.Errorf("status = %s, want %s", c.Status, ContractActive)
	}
	wantEnd := c.StartDate.AddDate(0, 18, 0)
	if !c.EstimatedEndDate.Equal(wantEnd) {
		t.Errorf("estimated end = %v, want %v", c.EstimatedEndDate, wantEnd)
	}
}

func TestCreateContract_Validation(t *testing.T) {
	env := newTestEnv()
	ctx := txContext()
	base := func() *Contract {
		return &Contract{PatientID: uuid.New(), TotalValue: 6000, DownPayment: 600,
			NumberOfMonths: 18, BillingDay: 10}
	}

	zeroTotal := base()
	zeroTotal.TotalValue = 0
	downTooBig := base()
	downTooBig.DownPayment = 6000
	zeroMonths := base()
	zeroMonths.NumberOfMonths = 0
	badDay := base()
	badDay.BillingDay = 31

	for name, c := range map[string]*Contract{
		"zero total": zeroTotal, "down equals total": downTooBig,
		"zero months": zeroMonths, "billing day 31": badDay,
	} {
		if err := env.svc.CreateContract(ctx, c); !apperr.IsKind(err, apperr.Validation) {
			t.Errorf("%s: error = %v, want Validation", name, err)
		}
	}
}

func TestGenerateInstallments(t *testing.T) {
	env := newTestEnv()
	ctx := txContext()
	c := seedContract(t, env)

	installments, err := env.svc.GenerateInstallments(ctx, c.ID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(installments) != 18 {
		t.Fatalf("installments = %d, want 18", len(installments))
	}
	for _, inst := range installments {
		if !money.Equal(inst.Amount, 300) {
			t.Errorf("amount = %.2f, want 300", inst.Amount)
		}
		if inst.DueDate.Day() != 10 {
			t.Errorf("due day = %d, want 10", inst.DueDate.Day())
		}
		if inst.SourceContractID == nil || *inst.SourceContractID != c.ID {
			t.Errorf("source contract = %v, want %s", inst.SourceContractID, c.ID)
		}
	}
}

func TestGenerateInstallments_Idempotent(t *testing.T) {
	env := newTestEnv()
	ctx := txContext()
	c := seedContract(t, env)

	if _, err := env.svc.GenerateInstallments(ctx, c.ID); err != nil {
		t.Fatalf("first generate: %v", err)
	}
	second, err := env.svc.GenerateInstallments(ctx, c.ID)
	if err != nil {
		t.Fatalf("second generate: %v", err)
	}
	if len(second) != 18 {
		t.Errorf("retry returned %d installments, want the existing 18", len(second))
	}
	if n, _ := env.installments.CountBySourceContract(ctx, c.ID); n != 18 {
		t.Errorf("stored installments = %d, want 18", n)
	}
}

func TestSuspendAndReactivate(t *testing.T) {
	env := newTestEnv()
	ctx := txContext()
	c := seedContract(t, env)

	suspended, err := env.svc.Suspend(ctx, c.ID, "payment dispute")
	if err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if suspended.Status != ContractSuspended || suspended.SuspendedReason == nil || suspended.SuspendedAt == nil {
		t.Errorf("suspended contract = %+v, want reason and timestamp recorded", suspended)
	}

	if _, err := env.svc.Suspend(ctx, c.ID, "again"); !apperr.IsKind(err, apperr.InvalidTransition) {
		t.Errorf("double suspend error = %v, want InvalidTransition", err)
	}

	active, err := env.svc.Reactivate(ctx, c.ID)
	if err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if active.Status != ContractActive || active.SuspendedReason != nil || active.SuspendedAt != nil {
		t.Errorf("reactivated contract = %+v, want suspension fields cleared", active)
	}
}

func TestSuspend_RequiresReason(t *testing.T) {
	env := newTestEnv()
	c := seedContract(t, env)
	if _, err := env.svc.Suspend(txContext(), c.ID, ""); !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("empty reason error = %v, want Validation", err)
	}
}

func TestCancelContract_TerminalIsFinal(t *testing.T) {
	env := newTestEnv()
	ctx := txContext()
	c := seedContract(t, env)

	if _, err := env.svc.CancelContract(ctx, c.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := env.svc.CancelContract(ctx, c.ID); !apperr.IsKind(err, apperr.InvalidState) {
		t.Errorf("double cancel error = %v, want InvalidState", err)
	}
	if _, err := env.svc.Reactivate(ctx, c.ID); !apperr.IsKind(err, apperr.InvalidTransition) {
		t.Errorf("reactivate cancelled error = %v, want InvalidTransition", err)
	}
}

func TestAdvancePhase_ForwardOnly(t *testing.T) {
	env := newTestEnv()
	ctx := txContext()
	c := seedContract(t, env)
	p := seedPlan(t, env, c.ID, 20, 20)

	got, err := env.svc.AdvancePhase(ctx, p.ID)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if got.Phase != "leveling" {
		t.Errorf("phase = %s, want leveling", got.Phase)
	}

	for i := 0; i < len(Phases)-2; i++ {
		if got, err = env.svc.AdvancePhase(ctx, p.ID); err != nil {
			t.Fatalf("advance %d: %v", i, err)
		}
	}
	if got.Phase != "retention" {
		t.Errorf("final phase = %s, want retention", got.Phase)
	}
	if _, err := env.svc.AdvancePhase(ctx, p.ID); !apperr.IsKind(err, apperr.InvalidState) {
		t.Errorf("advance past retention error = %v, want InvalidState", err)
	}
}

func TestAdvanceAligner_Boundary(t *testing.T) {
	env := newTestEnv()
	ctx := txContext()
	c := seedContract(t, env)
	p := seedPlan(t, env, c.ID, 2, 1)

	for i := 0; i < 2; i++ {
		if _, err := env.svc.AdvanceAligner(ctx, p.ID, ArchUpper); err != nil {
			t.Fatalf("upper advance %d: %v", i, err)
		}
	}
	if _, err := env.svc.AdvanceAligner(ctx, p.ID, ArchUpper); !apperr.IsKind(err, apperr.InvalidState) {
		t.Fatalf("advance past upper total error = %v, want InvalidState", err)
	}

	got, err := env.svc.AdvanceAligner(ctx, p.ID, ArchLower)
	if err != nil {
		t.Fatalf("lower advance: %v", err)
	}
	if got.LowerAlignerCurrent != 1 {
		t.Errorf("lower current = %d, want 1", got.LowerAlignerCurrent)
	}
	if got.LastChangeDate == nil {
		t.Errorf("last change date not stamped")
	}
	if next := got.NextChangeDate(); next == nil {
		t.Errorf("next change date not derived")
	}

	if _, err := env.svc.AdvanceAligner(ctx, p.ID, "sideways"); !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("bad arch error = %v, want Validation", err)
	}
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func TestCreateAppointment_AutoCreatesPlan(t *testing.T) {
	env := newTestEnv()
	ctx := txContext()
	c := seedContract(t, env)

	a := &Appointment{
		UpperArchwire:         strPtr("NiTi 0.014"),
		LowerArchwire:         strPtr("NiTi 0.012"),
		UpperElastic:          strPtr("class II 3/16"),
		UpperChain:            strPtr("closed chain 13-23"),
		AlignersDeliveredFrom: intPtr(1),
		AlignersDeliveredTo:   intPtr(4),
		NextVisitDays:         intPtr(30),
		Notes:                 "First evaluation.",
		HygieneScore:          4,
		ComplianceScore:       5,
		RegisteredBy:          uuid.New(),
	}
	if err := env.svc.CreateAppointment(ctx, c.ID, a); err != nil {
		t.Fatalf("appointment: %v", err)
	}

	plan, err := env.svc.GetPlanByContract(ctx, c.ID)
	if err != nil {
		t.Fatalf("auto-created plan missing: %v", err)
	}
	if plan.Phase != "diagnosis" || plan.UpperAlignerCurrent != 0 || plan.LowerAlignerCurrent != 0 {
		t.Errorf("default plan = %+v, want diagnosis with zero counters", plan)
	}
	if a.PlanID != plan.ID {
		t.Errorf("appointment plan = %s, want %s", a.PlanID, plan.ID)
	}

	// The visit record keeps the wire and delivery state as supplied, and the
	// delivered range never moves the plan's aligner counters.
	stored, _, err := env.svc.ListAppointments(ctx, plan.ID, pagination.Params{Limit: 10})
	if err != nil {
		t.Fatalf("list appointments: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("stored appointments = %d, want 1", len(stored))
	}
	got := stored[0]
	if got.UpperArchwire == nil || *got.UpperArchwire != "NiTi 0.014" {
		t.Errorf("upper archwire = %v, want NiTi 0.014", got.UpperArchwire)
	}
	if got.UpperElastic == nil || *got.UpperElastic != "class II 3/16" {
		t.Errorf("upper elastic = %v, want class II 3/16", got.UpperElastic)
	}
	if got.UpperChain == nil || *got.UpperChain != "closed chain 13-23" {
		t.Errorf("upper chain = %v, want closed chain 13-23", got.UpperChain)
	}
	if got.AlignersDeliveredFrom == nil || *got.AlignersDeliveredFrom != 1 ||
		got.AlignersDeliveredTo == nil || *got.AlignersDeliveredTo != 4 {
		t.Errorf("delivered range = %v..%v, want 1..4", got.AlignersDeliveredFrom, got.AlignersDeliveredTo)
	}
	if got.NextVisitDays == nil || *got.NextVisitDays != 30 {
		t.Errorf("next visit days = %v, want 30", got.NextVisitDays)
	}
	if plan.UpperAlignerCurrent != 0 {
		t.Errorf("delivery range advanced the plan counter to %d", plan.UpperAlignerCurrent)
	}

	// A second appointment reuses the same plan.
	b := &Appointment{Notes: "Follow-up.", HygieneScore: 3, ComplianceScore: 4, RegisteredBy: uuid.New()}
	if err := env.svc.CreateAppointment(ctx, c.ID, b); err != nil {
		t.Fatalf("second appointment: %v", err)
	}
	if b.PlanID != plan.ID {
		t.Errorf("second appointment attached to a new plan")
	}
}

func TestCreateAppointment_ScoreValidation(t *testing.T) {
	env := newTestEnv()
	ctx := txContext()
	c := seedContract(t, env)

	bad := &Appointment{Notes: "x", HygieneScore: 0, ComplianceScore: 3}
	if err := env.svc.CreateAppointment(ctx, c.ID, bad); !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("hygiene 0 error = %v, want Validation", err)
	}
	bad = &Appointment{Notes: "x", HygieneScore: 3, ComplianceScore: 6}
	if err := env.svc.CreateAppointment(ctx, c.ID, bad); !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("compliance 6 error = %v, want Validation", err)
	}

	bad = &Appointment{Notes: "x", HygieneScore: 3, ComplianceScore: 3, AlignersDeliveredFrom: intPtr(2)}
	if err := env.svc.CreateAppointment(ctx, c.ID, bad); !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("half-open delivery range error = %v, want Validation", err)
	}
	bad = &Appointment{Notes: "x", HygieneScore: 3, ComplianceScore: 3,
		AlignersDeliveredFrom: intPtr(5), AlignersDeliveredTo: intPtr(2)}
	if err := env.svc.CreateAppointment(ctx, c.ID, bad); !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("inverted delivery range error = %v, want Validation", err)
	}
	bad = &Appointment{Notes: "x", HygieneScore: 3, ComplianceScore: 3, NextVisitDays: intPtr(0)}
	if err := env.svc.CreateAppointment(ctx, c.ID, bad); !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("zero next visit interval error = %v, want Validation", err)
	}
}

func TestStock_LifecycleAndCounterSync(t *testing.T) {
	env := newTestEnv()
	ctx := txContext()
	c := seedContract(t, env)
	p := seedPlan(t, env, c.ID, 20, 20)

	item, err := env.svc.AddStock(ctx, p.ID, ArchUpper, 5)
	if err != nil {
		t.Fatalf("add stock: %v", err)
	}
	if item.Status != StockOrdered {
		t.Errorf("initial status = %s, want %s", item.Status, StockOrdered)
	}

	// Skipping straight to in_use is not allowed.
	if _, err := env.svc.SetStockStatus(ctx, item.ID, StockInUse); !apperr.IsKind(err, apperr.InvalidTransition) {
		t.Fatalf("ordered to in_use error = %v, want InvalidTransition", err)
	}

	for _, status := range []string{StockReceived, StockDelivered, StockInUse} {
		if _, err := env.svc.SetStockStatus(ctx, item.ID, status); err != nil {
			t.Fatalf("to %s: %v", status, err)
		}
	}

	plan, _ := env.svc.GetPlan(ctx, p.ID)
	if plan.UpperAlignerCurrent != 5 {
		t.Errorf("upper counter after in_use sync = %d, want 5", plan.UpperAlignerCurrent)
	}

	if _, err := env.svc.SetStockStatus(ctx, item.ID, StockCompleted); err != nil {
		t.Fatalf("to completed: %v", err)
	}
	if _, err := env.svc.SetStockStatus(ctx, item.ID, StockLost); !apperr.IsKind(err, apperr.InvalidState) {
		t.Errorf("transition from completed error = %v, want InvalidState", err)
	}
}

func TestStock_InUseNeverLowersCounter(t *testing.T) {
	env := newTestEnv()
	ctx := txContext()
	c := seedContract(t, env)
	p := seedPlan(t, env, c.ID, 20, 20)

	for i := 0; i < 8; i++ {
		if _, err := env.svc.AdvanceAligner(ctx, p.ID, ArchUpper); err != nil {
			t.Fatalf("advance %d: %v", i, err)
		}
	}

	item, _ := env.svc.AddStock(ctx, p.ID, ArchUpper, 3)
	for _, status := range []string{StockReceived, StockDelivered, StockInUse} {
		if _, err := env.svc.SetStockStatus(ctx, item.ID, status); err != nil {
			t.Fatalf("to %s: %v", status, err)
		}
	}

	plan, _ := env.svc.GetPlan(ctx, p.ID)
	if plan.UpperAlignerCurrent != 8 {
		t.Errorf("counter = %d, want 8 (sync never lowers)", plan.UpperAlignerCurrent)
	}
}

func TestStock_LostFromAnyNonTerminal(t *testing.T) {
	env := newTestEnv()
	ctx := txContext()
	c := seedContract(t, env)
	p := seedPlan(t, env, c.ID, 20, 20)

	item, _ := env.svc.AddStock(ctx, p.ID, ArchLower, 1)
	if _, err := env.svc.SetStockStatus(ctx, item.ID, StockLost); err != nil {
		t.Fatalf("ordered to lost: %v", err)
	}
}

func TestStock_DuplicateSequenceConflicts(t *testing.T) {
	env := newTestEnv()
	ctx := txContext()
	c := seedContract(t, env)
	p := seedPlan(t, env, c.ID, 20, 20)

	if _, err := env.svc.AddStock(ctx, p.ID, ArchUpper, 1); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if _, err := env.svc.AddStock(ctx, p.ID, ArchUpper, 1); !apperr.IsKind(err, apperr.Conflict) {
		t.Errorf("duplicate error = %v, want Conflict", err)
	}
}

func TestAgingReport(t *testing.T) {
	env := newTestEnv()
	ctx := txContext()

	late := seedContract(t, env)
	current := seedContract(t, env)

	if _, err := env.svc.GenerateInstallments(ctx, late.ID); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := env.svc.GenerateInstallments(ctx, current.ID); err != nil {
		t.Fatalf("generate: %v", err)
	}

	// Push two of the late contract's installments 40 days into the past,
	// one of them partially settled. The report still carries its full amount.
	n := 0
	for _, inst := range env.installments.items {
		if inst.SourceContractID != nil && *inst.SourceContractID == late.ID && n < 2 {
			inst.DueDate = time.Now().AddDate(0, 0, -40)
			if n == 0 {
				inst.AmountPaid = 100
				inst.Status = billing.InstallmentPartial
			}
			n++
		}
	}
	// Keep the current contract fully in the future.
	for _, inst := range env.installments.items {
		if inst.SourceContractID != nil && *inst.SourceContractID == current.ID {
			inst.DueDate = time.Now().AddDate(0, 2, 0)
		}
	}

	report, err := env.svc.AgingReport(ctx)
	if err != nil {
		t.Fatalf("aging report: %v", err)
	}
	if len(report) != 1 {
		t.Fatalf("report entries = %d, want 1", len(report))
	}
	entry := report[0]
	if entry.ContractID != late.ID {
		t.Errorf("entry contract = %s, want %s", entry.ContractID, late.ID)
	}
	if !money.Equal(entry.OverdueAmount, 600) || entry.OverdueCount != 2 {
		t.Errorf("entry = %+v, want 600 across 2", entry)
	}
	if entry.DaysOverdue != 40 || entry.Severity != "critical" {
		t.Errorf("entry aging = %d/%s, want 40/critical", entry.DaysOverdue, entry.Severity)
	}
}

func TestSeverityBands(t *testing.T) {
	cases := map[int]string{40: "critical", 31: "critical", 30: "high", 16: "high",
		15: "moderate", 11: "moderate", 10: "low", 0: "low"}
	for days, want := range cases {
		if got := SeverityFor(days); got != want {
			t.Errorf("SeverityFor(%d) = %s, want %s", days, got, want)
		}
	}
}
