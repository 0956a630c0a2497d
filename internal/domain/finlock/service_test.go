package finlock

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/odontocore/clinic/internal/domain/billing"
	"github.com/odontocore/clinic/internal/platform/apperr"
)

type staticOverdue struct {
	byPatient map[uuid.UUID]billing.OverdueSummary
}

func (s *staticOverdue) OverdueByPatient(_ context.Context, patientID uuid.UUID, _ time.Time) (billing.OverdueSummary, error) {
	return s.byPatient[patientID], nil
}

func newTestService(byPatient map[uuid.UUID]billing.OverdueSummary) *Service {
	return NewService(&staticOverdue{byPatient: byPatient}, "4321", []byte("test-override-secret"), 2*time.Minute)
}

func TestCheckStatus(t *testing.T) {
	locked := uuid.New()
	clean := uuid.New()
	oldest := time.Now().AddDate(0, 0, -20)
	svc := newTestService(map[uuid.UUID]billing.OverdueSummary{
		locked: {Total: 750.50, Count: 2, Oldest: &oldest},
	})

	status, err := svc.CheckStatus(context.Background(), locked)
	if err != nil {
		t.Fatalf("check status: %v", err)
	}
	if !status.Locked || status.OverdueAmount != 750.50 || status.OverdueCount != 2 {
		t.Errorf("status = %+v, want locked with 750.50 across 2", status)
	}

	status, err = svc.CheckStatus(context.Background(), clean)
	if err != nil {
		t.Fatalf("check status: %v", err)
	}
	if status.Locked {
		t.Errorf("patient with no overdue installments reported locked")
	}
}

func TestVerifyPIN(t *testing.T) {
	svc := newTestService(nil)
	if err := svc.VerifyPIN("4321"); err != nil {
		t.Errorf("correct pin rejected: %v", err)
	}
	if err := svc.VerifyPIN("0000"); !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("wrong pin error = %v, want Validation", err)
	}

	unconfigured := NewService(&staticOverdue{}, "", []byte("s"), time.Minute)
	if err := unconfigured.VerifyPIN("4321"); !apperr.IsKind(err, apperr.InvalidState) {
		t.Errorf("unconfigured pin error = %v, want InvalidState", err)
	}
}

func TestUnlock_WrongPINGivesNoToken(t *testing.T) {
	svc := newTestService(nil)
	token, err := svc.Unlock(context.Background(), "9999", uuid.New())
	if !apperr.IsKind(err, apperr.Validation) {
		t.Fatalf("wrong pin error = %v, want Validation", err)
	}
	if token != nil {
		t.Fatalf("wrong pin still produced a token")
	}
}

func TestAuthorize_LockedWithoutToken(t *testing.T) {
	patientID := uuid.New()
	svc := newTestService(map[uuid.UUID]billing.OverdueSummary{
		patientID: {Total: 300, Count: 1},
	})

	err := svc.Authorize(context.Background(), patientID, "")
	if !apperr.IsKind(err, apperr.Locked) {
		t.Fatalf("locked patient error = %v, want Locked", err)
	}
	if apperr.Status(err) != 423 {
		t.Errorf("locked status = %d, want 423", apperr.Status(err))
	}
}

func TestAuthorize_OverrideTokenReleasesLock(t *testing.T) {
	patientID := uuid.New()
	svc := newTestService(map[uuid.UUID]billing.OverdueSummary{
		patientID: {Total: 300, Count: 1},
	})

	token, err := svc.Unlock(context.Background(), "4321", patientID)
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := svc.Authorize(context.Background(), patientID, token.Token); err != nil {
		t.Fatalf("authorize with override token: %v", err)
	}
}

func TestAuthorize_TokenBoundToPatient(t *testing.T) {
	patientA := uuid.New()
	patientB := uuid.New()
	svc := newTestService(map[uuid.UUID]billing.OverdueSummary{
		patientA: {Total: 300, Count: 1},
		patientB: {Total: 120, Count: 1},
	})

	token, err := svc.Unlock(context.Background(), "4321", patientA)
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := svc.Authorize(context.Background(), patientB, token.Token); !apperr.IsKind(err, apperr.Locked) {
		t.Fatalf("token for another patient error = %v, want Locked", err)
	}
}

func TestAuthorize_ExpiredToken(t *testing.T) {
	patientID := uuid.New()
	overdue := &staticOverdue{byPatient: map[uuid.UUID]billing.OverdueSummary{
		patientID: {Total: 300, Count: 1},
	}}
	svc := NewService(overdue, "4321", []byte("test-override-secret"), -time.Minute)

	token, err := svc.Unlock(context.Background(), "4321", patientID)
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := svc.Authorize(context.Background(), patientID, token.Token); !apperr.IsKind(err, apperr.Locked) {
		t.Fatalf("expired token error = %v, want Locked", err)
	}
}

func TestAuthorize_UnlockedIgnoresToken(t *testing.T) {
	svc := newTestService(nil)
	if err := svc.Authorize(context.Background(), uuid.New(), "garbage"); err != nil {
		t.Fatalf("unlocked patient with garbage token: %v", err)
	}
}
