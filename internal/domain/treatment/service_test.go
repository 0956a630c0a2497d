package treatment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/odontocore/clinic/internal/domain/patient"
	"github.com/odontocore/clinic/internal/platform/apperr"
	"github.com/odontocore/clinic/internal/platform/db"
	"github.com/odontocore/clinic/pkg/pagination"
)

type stubTx struct{ pgx.Tx }

func txContext() context.Context {
	return context.WithValue(context.Background(), db.DBTxKey, stubTx{})
}

type mockRepo struct {
	items map[uuid.UUID]*Item
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[uuid.UUID]*Item)}
}

func (m *mockRepo) CreateBatch(_ context.Context, specs []ItemSpec) ([]*Item, error) {
	var out []*Item
	for _, spec := range specs {
		it := &Item{
			ID:           uuid.New(),
			BudgetID:     spec.BudgetID,
			BudgetItemID: spec.BudgetItemID,
			PatientID:    spec.PatientID,
			Procedure:    spec.Procedure,
			Region:       spec.Region,
			Status:       StatusNotStarted,
		}
		m.items[it.ID] = it
		out = append(out, it)
	}
	return out, nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Item, error) {
	it, ok := m.items[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "treatment item not found")
	}
	return it, nil
}

func (m *mockRepo) ListByPatient(_ context.Context, patientID uuid.UUID, _ pagination.Params) ([]*Item, int, error) {
	var out []*Item
	for _, it := range m.items {
		if it.PatientID == patientID {
			out = append(out, it)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) ListByBudget(_ context.Context, budgetID uuid.UUID) ([]*Item, error) {
	var out []*Item
	for _, it := range m.items {
		if it.BudgetID == budgetID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *mockRepo) SetStatus(_ context.Context, id uuid.UUID, fromStatus, toStatus string, executedBy *uuid.UUID) (*Item, error) {
	it, ok := m.items[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "treatment item not found")
	}
	if it.Status != fromStatus {
		return nil, apperr.New(apperr.InvalidTransition, "treatment item is not %s", fromStatus)
	}
	it.Status = toStatus
	if toStatus == StatusCompleted {
		now := time.Now()
		it.ExecutionDate = &now
	}
	if executedBy != nil {
		it.ExecutedBy = executedBy
	}
	return it, nil
}

func (m *mockRepo) DeleteByBudget(_ context.Context, budgetID uuid.UUID) (int, error) {
	n := 0
	for id, it := range m.items {
		if it.BudgetID == budgetID {
			delete(m.items, id)
			n++
		}
	}
	return n, nil
}

// mockGate accepts pin "4321" and locks the patients listed in locked,
// releasing them only for the token "override-ok".
type mockGate struct {
	locked map[uuid.UUID]bool
}

func (g *mockGate) VerifyPIN(pin string) error {
	if pin != "4321" {
		return apperr.New(apperr.Validation, "invalid pin")
	}
	return nil
}

func (g *mockGate) Authorize(_ context.Context, patientID uuid.UUID, token string) error {
	if g.locked[patientID] && token != "override-ok" {
		return apperr.New(apperr.Locked, "patient is financially locked")
	}
	return nil
}

type mockNotes struct {
	notes []*patient.ClinicalNote
}

func (m *mockNotes) AppendNote(_ context.Context, n *patient.ClinicalNote) error {
	m.notes = append(m.notes, n)
	return nil
}

func newTestService(locked ...uuid.UUID) (*Service, *mockRepo, *mockNotes) {
	repo := newMockRepo()
	gate := &mockGate{locked: make(map[uuid.UUID]bool)}
	for _, id := range locked {
		gate.locked[id] = true
	}
	notes := &mockNotes{}
	return NewService(repo, gate, notes), repo, notes
}

func seedItem(t *testing.T, svc *Service, patientID uuid.UUID) *Item {
	t.Helper()
	items, err := svc.CreateForBudget(txContext(), []ItemSpec{{
		BudgetID:  uuid.New(),
		PatientID: patientID,
		Procedure: "Restoration",
	}})
	if err != nil {
		t.Fatalf("seed item: %v", err)
	}
	return items[0]
}

func TestStart(t *testing.T) {
	svc, _, _ := newTestService()
	patientID := uuid.New()
	item := seedItem(t, svc, patientID)

	got, err := svc.Start(txContext(), item.ID, uuid.New(), ExecInput{PIN: "4321"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if got.Status != StatusInProgress {
		t.Errorf("status = %s, want %s", got.Status, StatusInProgress)
	}
}

func TestStart_OnlyFromNotStarted(t *testing.T) {
	svc, _, _ := newTestService()
	item := seedItem(t, svc, uuid.New())

	if _, err := svc.Start(txContext(), item.ID, uuid.New(), ExecInput{PIN: "4321"}); err != nil {
		t.Fatalf("first start: %v", err)
	}
	_, err := svc.Start(txContext(), item.ID, uuid.New(), ExecInput{PIN: "4321"})
	if !apperr.IsKind(err, apperr.InvalidTransition) {
		t.Fatalf("second start error = %v, want InvalidTransition", err)
	}
}

func TestStart_RequiresPIN(t *testing.T) {
	svc, _, _ := newTestService()
	item := seedItem(t, svc, uuid.New())

	_, err := svc.Start(txContext(), item.ID, uuid.New(), ExecInput{PIN: "wrong"})
	if !apperr.IsKind(err, apperr.Validation) {
		t.Fatalf("wrong pin error = %v, want Validation", err)
	}
	got, _ := svc.Get(txContext(), item.ID)
	if got.Status != StatusNotStarted {
		t.Errorf("status after rejected start = %s, want %s", got.Status, StatusNotStarted)
	}
}

func TestStart_LockedPatientNeedsOverride(t *testing.T) {
	patientID := uuid.New()
	svc, _, _ := newTestService(patientID)
	item := seedItem(t, svc, patientID)

	_, err := svc.Start(txContext(), item.ID, uuid.New(), ExecInput{PIN: "4321"})
	if !apperr.IsKind(err, apperr.Locked) {
		t.Fatalf("locked patient error = %v, want Locked", err)
	}

	got, err := svc.Start(txContext(), item.ID, uuid.New(), ExecInput{PIN: "4321", OverrideToken: "override-ok"})
	if err != nil {
		t.Fatalf("start with override: %v", err)
	}
	if got.Status != StatusInProgress {
		t.Errorf("status = %s, want %s", got.Status, StatusInProgress)
	}
}

func TestConclude(t *testing.T) {
	svc, _, notes := newTestService()
	patientID := uuid.New()
	item := seedItem(t, svc, patientID)
	operator := uuid.New()

	if _, err := svc.Start(txContext(), item.ID, operator, ExecInput{PIN: "4321"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	note := "Restoration on tooth 26 finished without complications."
	got, err := svc.Conclude(txContext(), item.ID, operator, ExecInput{PIN: "4321", Note: &note})
	if err != nil {
		t.Fatalf("conclude: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("status = %s, want %s", got.Status, StatusCompleted)
	}
	if got.ExecutionDate == nil {
		t.Errorf("execution date not set on conclusion")
	}
	if len(notes.notes) != 1 || notes.notes[0].Content != note {
		t.Errorf("clinical note = %+v, want the supplied note", notes.notes)
	}
	if notes.notes[0].RegisteredBy != operator {
		t.Errorf("note registered_by = %s, want operator %s", notes.notes[0].RegisteredBy, operator)
	}
}

func TestConclude_GeneratesDefaultNote(t *testing.T) {
	svc, _, notes := newTestService()
	item := seedItem(t, svc, uuid.New())

	if _, err := svc.Start(txContext(), item.ID, uuid.New(), ExecInput{PIN: "4321"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.Conclude(txContext(), item.ID, uuid.New(), ExecInput{PIN: "4321"}); err != nil {
		t.Fatalf("conclude: %v", err)
	}
	if len(notes.notes) != 1 || notes.notes[0].Content == "" {
		t.Fatalf("default note missing: %+v", notes.notes)
	}
}

func TestConclude_OnlyFromInProgress(t *testing.T) {
	svc, _, _ := newTestService()
	item := seedItem(t, svc, uuid.New())

	_, err := svc.Conclude(txContext(), item.ID, uuid.New(), ExecInput{PIN: "4321"})
	if !apperr.IsKind(err, apperr.InvalidTransition) {
		t.Fatalf("conclude from not_started error = %v, want InvalidTransition", err)
	}
}
