package patient

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/odontocore/clinic/internal/platform/apperr"
	"github.com/odontocore/clinic/pkg/money"
)

// -- Mock Repositories --

type mockRepo struct {
	items map[uuid.UUID]*Patient
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[uuid.UUID]*Patient)}
}

func (m *mockRepo) Create(_ context.Context, p *Patient) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = time.Now()
	m.items[p.ID] = p
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.items[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "patient not found")
	}
	return p, nil
}

func (m *mockRepo) Update(_ context.Context, p *Patient) error {
	if _, ok := m.items[p.ID]; !ok {
		return apperr.New(apperr.NotFound, "patient not found")
	}
	m.items[p.ID] = p
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.items, id)
	return nil
}

func (m *mockRepo) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	var result []*Patient
	for _, p := range m.items {
		result = append(result, p)
	}
	return result, len(result), nil
}

func (m *mockRepo) SearchByName(_ context.Context, name string, limit, offset int) ([]*Patient, int, error) {
	var result []*Patient
	for _, p := range m.items {
		result = append(result, p)
	}
	return result, len(result), nil
}

func (m *mockRepo) Count(_ context.Context) (int, error) { return len(m.items), nil }

func (m *mockRepo) AdjustAggregates(_ context.Context, id uuid.UUID, dApproved, dPaid float64) error {
	p, ok := m.items[id]
	if !ok {
		return apperr.New(apperr.NotFound, "patient not found")
	}
	p.TotalApproved += dApproved
	p.TotalPaid += dPaid
	p.BalanceDue += dApproved - dPaid
	return nil
}

func (m *mockRepo) SetAggregates(_ context.Context, id uuid.UUID, approved, paid float64) error {
	p, ok := m.items[id]
	if !ok {
		return apperr.New(apperr.NotFound, "patient not found")
	}
	p.TotalApproved = approved
	p.TotalPaid = paid
	p.BalanceDue = approved - paid
	return nil
}

type mockNoteRepo struct {
	notes []*ClinicalNote
}

func (m *mockNoteRepo) Append(_ context.Context, n *ClinicalNote) error {
	n.ID = uuid.New()
	n.CreatedAt = time.Now()
	m.notes = append(m.notes, n)
	return nil
}

func (m *mockNoteRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*ClinicalNote, int, error) {
	var result []*ClinicalNote
	for _, n := range m.notes {
		if n.PatientID == patientID {
			result = append(result, n)
		}
	}
	return result, len(result), nil
}

type staticSummer struct {
	value float64
	err   error
}

func (s staticSummer) SumApprovedByPatient(_ context.Context, _ uuid.UUID) (float64, error) {
	return s.value, s.err
}

func (s staticSummer) SumPaidByPatient(_ context.Context, _ uuid.UUID) (float64, error) {
	return s.value, s.err
}

func newTestService() (*Service, *mockRepo, *mockNoteRepo) {
	repo := newMockRepo()
	notes := &mockNoteRepo{}
	return NewService(repo, notes), repo, notes
}

// -- Tests --

func TestCreate(t *testing.T) {
	svc, _, _ := newTestService()
	p := &Patient{FullName: "Ana Souza"}
	if err := svc.Create(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID == uuid.Nil {
		t.Error("expected id assigned")
	}
}

func TestCreate_NameRequired(t *testing.T) {
	svc, _, _ := newTestService()
	err := svc.Create(context.Background(), &Patient{FullName: "   "})
	if !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestAppendNote(t *testing.T) {
	svc, _, notes := newTestService()
	p := &Patient{FullName: "Ana Souza"}
	svc.Create(context.Background(), p)

	n := &ClinicalNote{PatientID: p.ID, Content: "Initial evaluation", RegisteredBy: uuid.New()}
	if err := svc.AppendNote(context.Background(), n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notes.notes) != 1 {
		t.Errorf("expected 1 note stored, got %d", len(notes.notes))
	}
}

func TestAppendNote_UnknownPatient(t *testing.T) {
	svc, _, _ := newTestService()
	n := &ClinicalNote{PatientID: uuid.New(), Content: "x"}
	err := svc.AppendNote(context.Background(), n)
	if !apperr.IsKind(err, apperr.NotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestAppendNote_EmptyContent(t *testing.T) {
	svc, _, _ := newTestService()
	err := svc.AppendNote(context.Background(), &ClinicalNote{PatientID: uuid.New(), Content: ""})
	if !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestAggregateInvariant_UnderAdjustments(t *testing.T) {
	_, repo, _ := newTestService()
	p := &Patient{FullName: "Ana Souza"}
	repo.Create(context.Background(), p)

	// approve 1500, pay 300, reverse 1500/300 (budget deletion)
	steps := []struct{ dApproved, dPaid float64 }{
		{1500, 0},
		{0, 200},
		{0, 100},
		{-1500, -300},
	}
	for _, st := range steps {
		if err := repo.AdjustAggregates(context.Background(), p.ID, st.dApproved, st.dPaid); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !money.Equal(p.BalanceDue, p.TotalApproved-p.TotalPaid) {
			t.Fatalf("invariant broken: due=%v approved=%v paid=%v", p.BalanceDue, p.TotalApproved, p.TotalPaid)
		}
	}
	if !money.Equal(p.TotalApproved, 0) || !money.Equal(p.TotalPaid, 0) || !money.Equal(p.BalanceDue, 0) {
		t.Errorf("expected aggregates back at zero, got %+v", p)
	}
}

func TestReconcile_CorrectsDrift(t *testing.T) {
	svc, repo, _ := newTestService()
	p := &Patient{FullName: "Ana Souza"}
	repo.Create(context.Background(), p)
	// Simulate drift: counters out of line with authoritative sums.
	p.TotalApproved = 1400
	p.TotalPaid = 250
	p.BalanceDue = 1150

	svc.SetReconciliationSources(staticSummer{value: 1500}, staticSummer{value: 300})

	result, err := svc.Reconcile(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Drifted {
		t.Error("expected drift detected")
	}
	if !money.Equal(p.TotalApproved, 1500) || !money.Equal(p.TotalPaid, 300) || !money.Equal(p.BalanceDue, 1200) {
		t.Errorf("aggregates not corrected: %+v", p)
	}
}

func TestReconcile_NoDriftNoWrite(t *testing.T) {
	svc, repo, _ := newTestService()
	p := &Patient{FullName: "Ana Souza"}
	repo.Create(context.Background(), p)
	p.TotalApproved = 1500
	p.TotalPaid = 300
	p.BalanceDue = 1200

	svc.SetReconciliationSources(staticSummer{value: 1500}, staticSummer{value: 300})

	result, err := svc.Reconcile(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Drifted {
		t.Error("expected no drift")
	}
}

func TestReconcile_SourcesNotConfigured(t *testing.T) {
	svc, repo, _ := newTestService()
	p := &Patient{FullName: "Ana Souza"}
	repo.Create(context.Background(), p)

	_, err := svc.Reconcile(context.Background(), p.ID)
	if !apperr.IsKind(err, apperr.InvalidState) {
		t.Errorf("expected invalid state, got %v", err)
	}
}

func TestReconcile_SourceFailure(t *testing.T) {
	svc, repo, _ := newTestService()
	p := &Patient{FullName: "Ana Souza"}
	repo.Create(context.Background(), p)
	svc.SetReconciliationSources(staticSummer{err: fmt.Errorf("db down")}, staticSummer{value: 0})

	if _, err := svc.Reconcile(context.Background(), p.ID); err == nil {
		t.Error("expected error propagated from source")
	}
}
