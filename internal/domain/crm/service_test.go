package crm

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/odontocore/clinic/internal/platform/apperr"
)

type mockRepo struct {
	items map[uuid.UUID]*Opportunity
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[uuid.UUID]*Opportunity)}
}

func (m *mockRepo) Create(_ context.Context, o *Opportunity) error {
	o.ID = uuid.New()
	if o.Status == "" {
		o.Status = StatusOpen
	}
	o.CreatedAt = time.Now()
	m.items[o.ID] = o
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Opportunity, error) {
	o, ok := m.items[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "opportunity not found")
	}
	return o, nil
}

func (m *mockRepo) GetOpenByBudget(_ context.Context, budgetID uuid.UUID) (*Opportunity, error) {
	for _, o := range m.items {
		if o.BudgetID == budgetID && o.Status == StatusOpen {
			return o, nil
		}
	}
	return nil, apperr.New(apperr.NotFound, "opportunity not found")
}

func (m *mockRepo) Close(_ context.Context, id uuid.UUID, status string) error {
	o, ok := m.items[id]
	if !ok || o.Status != StatusOpen {
		return apperr.New(apperr.NotFound, "open opportunity not found")
	}
	now := time.Now()
	o.Status = status
	o.ClosedAt = &now
	return nil
}

func (m *mockRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Opportunity, int, error) {
	var result []*Opportunity
	for _, o := range m.items {
		if o.PatientID == patientID {
			result = append(result, o)
		}
	}
	return result, len(result), nil
}

func (m *mockRepo) ListByStatus(_ context.Context, status string, limit, offset int) ([]*Opportunity, int, error) {
	var result []*Opportunity
	for _, o := range m.items {
		if o.Status == status {
			result = append(result, o)
		}
	}
	return result, len(result), nil
}

func (m *mockRepo) SumOpenValue(_ context.Context) (float64, error) {
	var sum float64
	for _, o := range m.items {
		if o.Status == StatusOpen {
			sum += o.Value
		}
	}
	return sum, nil
}

func TestOpenForBudget(t *testing.T) {
	svc := NewService(newMockRepo())
	budgetID := uuid.New()

	id, err := svc.OpenForBudget(context.Background(), uuid.New(), budgetID, uuid.New(), 1500, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == uuid.Nil {
		t.Error("expected opportunity id")
	}
}

func TestOpenForBudget_Idempotent(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	budgetID := uuid.New()

	first, _ := svc.OpenForBudget(context.Background(), uuid.New(), budgetID, uuid.New(), 1500, nil)
	second, err := svc.OpenForBudget(context.Background(), uuid.New(), budgetID, uuid.New(), 1500, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Errorf("expected same opportunity id, got %s and %s", first, second)
	}
	if len(repo.items) != 1 {
		t.Errorf("expected 1 opportunity, got %d", len(repo.items))
	}
}

func TestCloseForBudget_Won(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	budgetID := uuid.New()
	id, _ := svc.OpenForBudget(context.Background(), uuid.New(), budgetID, uuid.New(), 1500, nil)

	if err := svc.CloseForBudget(context.Background(), budgetID, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	o := repo.items[id]
	if o.Status != StatusWon {
		t.Errorf("expected won, got %s", o.Status)
	}
	if o.ClosedAt == nil {
		t.Error("expected closed_at set")
	}
}

func TestCloseForBudget_NoOpportunityIsNoop(t *testing.T) {
	svc := NewService(newMockRepo())
	if err := svc.CloseForBudget(context.Background(), uuid.New(), false); err != nil {
		t.Errorf("expected silent no-op, got %v", err)
	}
}

func TestPipelineValue(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	b1, b2 := uuid.New(), uuid.New()
	svc.OpenForBudget(context.Background(), uuid.New(), b1, uuid.New(), 1000, nil)
	svc.OpenForBudget(context.Background(), uuid.New(), b2, uuid.New(), 500, nil)
	svc.CloseForBudget(context.Background(), b2, false)

	v, err := svc.PipelineValue(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 1000 {
		t.Errorf("expected pipeline 1000, got %v", v)
	}
}

func TestListByStatus_Invalid(t *testing.T) {
	svc := NewService(newMockRepo())
	_, _, err := svc.ListByStatus(context.Background(), "bogus", 10, 0)
	if !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("expected validation error, got %v", err)
	}
}
