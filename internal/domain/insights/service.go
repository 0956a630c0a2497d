package insights

import (
	"context"
	"time"

	"github.com/odontocore/clinic/internal/domain/billing"
	"github.com/odontocore/clinic/pkg/money"
)

// PatientCounter is the slice of the patient repository the snapshot needs.
type PatientCounter interface {
	Count(ctx context.Context) (int, error)
}

// RevenueSource is the slice of the installment repository the snapshot needs.
type RevenueSource interface {
	SumPaymentsBetween(ctx context.Context, from, to time.Time) (float64, error)
	OverdueTotal(ctx context.Context, asOf time.Time) (billing.OverdueSummary, error)
}

// PipelineSource reports the total value sitting in open negotiations.
type PipelineSource interface {
	PipelineValue(ctx context.Context) (float64, error)
}

// Snapshot is the clinic's headline numbers at one point in time.
type Snapshot struct {
	GeneratedAt      time.Time `json:"generated_at"`
	PatientCount     int       `json:"patient_count"`
	RevenueToday     float64   `json:"revenue_today"`
	RevenueThisMonth float64   `json:"revenue_this_month"`
	OverdueTotal     float64   `json:"overdue_total"`
	OverdueCount     int       `json:"overdue_count"`
	PipelineValue    float64   `json:"pipeline_value"`
}

type Service struct {
	patients PatientCounter
	revenue  RevenueSource
	pipeline PipelineSource
}

func NewService(patients PatientCounter, revenue RevenueSource, pipeline PipelineSource) *Service {
	return &Service{patients: patients, revenue: revenue, pipeline: pipeline}
}

// Snapshot assembles the dashboard numbers. Day and month windows are taken
// in the server's local time.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	now := time.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	count, err := s.patients.Count(ctx)
	if err != nil {
		return nil, err
	}
	today, err := s.revenue.SumPaymentsBetween(ctx, dayStart, now)
	if err != nil {
		return nil, err
	}
	month, err := s.revenue.SumPaymentsBetween(ctx, monthStart, now)
	if err != nil {
		return nil, err
	}
	overdue, err := s.revenue.OverdueTotal(ctx, now)
	if err != nil {
		return nil, err
	}
	pipeline, err := s.pipeline.PipelineValue(ctx)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		GeneratedAt:      now,
		PatientCount:     count,
		RevenueToday:     money.Round2(today),
		RevenueThisMonth: money.Round2(month),
		OverdueTotal:     money.Round2(overdue.Total),
		OverdueCount:     overdue.Count,
		PipelineValue:    money.Round2(pipeline),
	}, nil
}
