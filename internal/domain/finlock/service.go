package finlock

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/odontocore/clinic/internal/domain/billing"
	"github.com/odontocore/clinic/internal/platform/apperr"
	"github.com/odontocore/clinic/pkg/money"
)

const overrideScope = "finlock_override"

// OverdueSource exposes the overdue position the lock is computed from.
// The installment repository satisfies it.
type OverdueSource interface {
	OverdueByPatient(ctx context.Context, patientID uuid.UUID, asOf time.Time) (billing.OverdueSummary, error)
}

// Service gates clinical execution on the patient's financial standing.
// The lock is never a stored flag: it is recomputed from installments on
// every check, so a payment releases it immediately.
type Service struct {
	overdue OverdueSource
	pin     string
	secret  []byte
	ttl     time.Duration
}

func NewService(overdue OverdueSource, pin string, tokenSecret []byte, tokenTTL time.Duration) *Service {
	return &Service{overdue: overdue, pin: pin, secret: tokenSecret, ttl: tokenTTL}
}

// CheckStatus computes the lock from the patient's overdue installments.
func (s *Service) CheckStatus(ctx context.Context, patientID uuid.UUID) (*LockStatus, error) {
	summary, err := s.overdue.OverdueByPatient(ctx, patientID, time.Now())
	if err != nil {
		return nil, err
	}
	return &LockStatus{
		PatientID:     patientID,
		Locked:        money.Positive(summary.Total),
		OverdueAmount: money.Round2(summary.Total),
		OverdueCount:  summary.Count,
		OldestDueDate: summary.Oldest,
	}, nil
}

// VerifyPIN checks the execution PIN in constant time. It is the signature
// confirmation required on every treatment execution, locked or not.
func (s *Service) VerifyPIN(pin string) error {
	if s.pin == "" {
		return apperr.New(apperr.InvalidState, "execution pin is not configured")
	}
	if subtle.ConstantTimeCompare([]byte(pin), []byte(s.pin)) != 1 {
		return apperr.New(apperr.Validation, "invalid pin")
	}
	return nil
}

// Unlock exchanges the PIN for a short-lived override token bound to one
// patient. The mismatch reply carries no detail about which part failed.
func (s *Service) Unlock(ctx context.Context, pin string, patientID uuid.UUID) (*OverrideToken, error) {
	if err := s.VerifyPIN(pin); err != nil {
		return nil, err
	}

	expiresAt := time.Now().Add(s.ttl)
	claims := jwt.MapClaims{
		"sub":   patientID.String(),
		"scope": overrideScope,
		"iat":   time.Now().Unix(),
		"exp":   expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, err, "sign override token")
	}
	return &OverrideToken{Token: signed, ExpiresAt: expiresAt}, nil
}

// Authorize passes when the patient is unlocked, or locked with a valid
// override token for that same patient. The Locked error carries the overdue
// amount so callers can surface it.
func (s *Service) Authorize(ctx context.Context, patientID uuid.UUID, overrideToken string) error {
	status, err := s.CheckStatus(ctx, patientID)
	if err != nil {
		return err
	}
	if !status.Locked {
		return nil
	}
	if overrideToken == "" {
		return lockedError(status)
	}
	if err := s.verifyOverride(overrideToken, patientID); err != nil {
		return lockedError(status)
	}
	return nil
}

func (s *Service) verifyOverride(tokenString string, patientID uuid.UUID) error {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperr.New(apperr.Validation, "unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return apperr.New(apperr.Validation, "invalid override token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return apperr.New(apperr.Validation, "invalid override token")
	}
	if scope, _ := claims["scope"].(string); scope != overrideScope {
		return apperr.New(apperr.Validation, "invalid override token scope")
	}
	sub, _ := claims["sub"].(string)
	if sub != patientID.String() {
		return apperr.New(apperr.Validation, "override token is for another patient")
	}
	return nil
}

func lockedError(status *LockStatus) error {
	return apperr.New(apperr.Locked, "patient has %.2f overdue across %d installments",
		status.OverdueAmount, status.OverdueCount).
		WithDetails(map[string]interface{}{
			"overdue_amount": status.OverdueAmount,
			"overdue_count":  status.OverdueCount,
		})
}
