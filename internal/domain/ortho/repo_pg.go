package ortho

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odontocore/clinic/internal/platform/apperr"
	"github.com/odontocore/clinic/internal/platform/db"
	"github.com/odontocore/clinic/pkg/pagination"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func connFor(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type contractRepoPG struct{ pool *pgxpool.Pool }

func NewContractRepoPG(pool *pgxpool.Pool) ContractRepository {
	return &contractRepoPG{pool: pool}
}

const contractCols = `id, patient_id, total_value, down_payment, number_of_months, monthly_payment,
	billing_day, start_date, estimated_end_date, status, suspended_reason, suspended_at,
	registered_by, created_at, updated_at`

func scanContract(row pgx.Row) (*Contract, error) {
	var c Contract
	err := row.Scan(&c.ID, &c.PatientID, &c.TotalValue, &c.DownPayment, &c.NumberOfMonths,
		&c.MonthlyPayment, &c.BillingDay, &c.StartDate, &c.EstimatedEndDate, &c.Status,
		&c.SuspendedReason, &c.SuspendedAt, &c.RegisteredBy, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "contract not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, err, "scan contract")
	}
	return &c, nil
}

func (r *contractRepoPG) Create(ctx context.Context, c *Contract) error {
	c.ID = uuid.New()
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO ortho_contract (id, patient_id, total_value, down_payment, number_of_months,
			monthly_payment, billing_day, start_date, estimated_end_date, status, registered_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		c.ID, c.PatientID, c.TotalValue, c.DownPayment, c.NumberOfMonths, c.MonthlyPayment,
		c.BillingDay, c.StartDate, c.EstimatedEndDate, c.Status, c.RegisteredBy)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, err, "insert contract")
	}
	return nil
}

func (r *contractRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Contract, error) {
	return scanContract(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+contractCols+` FROM ortho_contract WHERE id = $1`, id))
}

func (r *contractRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, p pagination.Params) ([]*Contract, int, error) {
	conn := connFor(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM ortho_contract WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, apperr.Wrap(apperr.Persistence, err, "count contracts")
	}
	rows, err := conn.Query(ctx, `SELECT `+contractCols+`
		FROM ortho_contract WHERE patient_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.Persistence, err, "query contracts")
	}
	defer rows.Close()
	var out []*Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *contractRepoPG) ListByStatus(ctx context.Context, status string) ([]*Contract, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx, `SELECT `+contractCols+`
		FROM ortho_contract WHERE status = $1 ORDER BY created_at ASC`, status)
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, err, "query contracts by status")
	}
	defer rows.Close()
	var out []*Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *contractRepoPG) SetStatus(ctx context.Context, id uuid.UUID, fromStatus, toStatus string, reason *string) (*Contract, error) {
	row := connFor(ctx, r.pool).QueryRow(ctx, `
		UPDATE ortho_contract
		SET status = $3,
		    suspended_reason = CASE WHEN $3 = 'suspended' THEN $4 ELSE NULL END,
		    suspended_at = CASE WHEN $3 = 'suspended' THEN now() ELSE NULL END,
		    updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING `+contractCols, id, fromStatus, toStatus, reason)
	c, err := scanContract(row)
	if apperr.IsKind(err, apperr.NotFound) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, apperr.New(apperr.InvalidTransition, "contract is not %s", fromStatus)
	}
	return c, err
}

type planRepoPG struct{ pool *pgxpool.Pool }

func NewPlanRepoPG(pool *pgxpool.Pool) PlanRepository {
	return &planRepoPG{pool: pool}
}

const planCols = `id, contract_id, phase, upper_aligners_total, upper_aligner_current,
	lower_aligners_total, lower_aligner_current, change_interval_days, last_change_date,
	archwire, bracket, appliance_installed, created_at, updated_at`

func scanPlan(row pgx.Row) (*Plan, error) {
	var p Plan
	err := row.Scan(&p.ID, &p.ContractID, &p.Phase, &p.UpperAlignersTotal, &p.UpperAlignerCurrent,
		&p.LowerAlignersTotal, &p.LowerAlignerCurrent, &p.ChangeIntervalDays, &p.LastChangeDate,
		&p.Archwire, &p.Bracket, &p.ApplianceInstalled, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "treatment plan not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, err, "scan treatment plan")
	}
	return &p, nil
}

func (r *planRepoPG) Create(ctx context.Context, p *Plan) error {
	p.ID = uuid.New()
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO ortho_plan (id, contract_id, phase, upper_aligners_total, upper_aligner_current,
			lower_aligners_total, lower_aligner_current, change_interval_days, last_change_date,
			archwire, bracket, appliance_installed)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		p.ID, p.ContractID, p.Phase, p.UpperAlignersTotal, p.UpperAlignerCurrent,
		p.LowerAlignersTotal, p.LowerAlignerCurrent, p.ChangeIntervalDays, p.LastChangeDate,
		p.Archwire, p.Bracket, p.ApplianceInstalled)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.New(apperr.Conflict, "contract already has a treatment plan")
		}
		return apperr.Wrap(apperr.Persistence, err, "insert treatment plan")
	}
	return nil
}

func (r *planRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Plan, error) {
	return scanPlan(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+planCols+` FROM ortho_plan WHERE id = $1`, id))
}

func (r *planRepoPG) GetByContract(ctx context.Context, contractID uuid.UUID) (*Plan, error) {
	return scanPlan(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+planCols+` FROM ortho_plan WHERE contract_id = $1`, contractID))
}

func (r *planRepoPG) Update(ctx context.Context, p *Plan) error {
	tag, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE ortho_plan
		SET phase = $2, upper_aligners_total = $3, upper_aligner_current = $4,
		    lower_aligners_total = $5, lower_aligner_current = $6,
		    change_interval_days = $7, last_change_date = $8,
		    archwire = $9, bracket = $10, appliance_installed = $11,
		    updated_at = now()
		WHERE id = $1`,
		p.ID, p.Phase, p.UpperAlignersTotal, p.UpperAlignerCurrent,
		p.LowerAlignersTotal, p.LowerAlignerCurrent, p.ChangeIntervalDays, p.LastChangeDate,
		p.Archwire, p.Bracket, p.ApplianceInstalled)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, err, "update treatment plan")
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "treatment plan not found")
	}
	return nil
}

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO ortho_appointment (id, plan_id, contract_id, date,
		    upper_archwire, lower_archwire, upper_elastic, lower_elastic,
		    upper_chain, lower_chain, aligners_delivered_from, aligners_delivered_to,
		    next_visit_days, notes, hygiene_score, compliance_score, registered_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		a.ID, a.PlanID, a.ContractID, a.Date,
		a.UpperArchwire, a.LowerArchwire, a.UpperElastic, a.LowerElastic,
		a.UpperChain, a.LowerChain, a.AlignersDeliveredFrom, a.AlignersDeliveredTo,
		a.NextVisitDays, a.Notes, a.HygieneScore, a.ComplianceScore, a.RegisteredBy)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, err, "insert appointment")
	}
	return nil
}

func (r *appointmentRepoPG) ListByPlan(ctx context.Context, planID uuid.UUID, p pagination.Params) ([]*Appointment, int, error) {
	conn := connFor(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM ortho_appointment WHERE plan_id = $1`, planID).Scan(&total); err != nil {
		return nil, 0, apperr.Wrap(apperr.Persistence, err, "count appointments")
	}
	rows, err := conn.Query(ctx, `
		SELECT id, plan_id, contract_id, date,
		    upper_archwire, lower_archwire, upper_elastic, lower_elastic,
		    upper_chain, lower_chain, aligners_delivered_from, aligners_delivered_to,
		    next_visit_days, notes, hygiene_score, compliance_score, registered_by, created_at
		FROM ortho_appointment WHERE plan_id = $1
		ORDER BY date DESC LIMIT $2 OFFSET $3`, planID, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.Persistence, err, "query appointments")
	}
	defer rows.Close()
	var out []*Appointment
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(&a.ID, &a.PlanID, &a.ContractID, &a.Date,
			&a.UpperArchwire, &a.LowerArchwire, &a.UpperElastic, &a.LowerElastic,
			&a.UpperChain, &a.LowerChain, &a.AlignersDeliveredFrom, &a.AlignersDeliveredTo,
			&a.NextVisitDays, &a.Notes,
			&a.HygieneScore, &a.ComplianceScore, &a.RegisteredBy, &a.CreatedAt); err != nil {
			return nil, 0, apperr.Wrap(apperr.Persistence, err, "scan appointment")
		}
		out = append(out, &a)
	}
	return out, total, rows.Err()
}

type stockRepoPG struct{ pool *pgxpool.Pool }

func NewStockRepoPG(pool *pgxpool.Pool) StockRepository {
	return &stockRepoPG{pool: pool}
}

const stockCols = `id, plan_id, arch, sequence, status, created_at, updated_at`

func scanStock(row pgx.Row) (*StockItem, error) {
	var s StockItem
	err := row.Scan(&s.ID, &s.PlanID, &s.Arch, &s.Sequence, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "stock item not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, err, "scan stock item")
	}
	return &s, nil
}

func (r *stockRepoPG) Create(ctx context.Context, s *StockItem) error {
	s.ID = uuid.New()
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO ortho_aligner_stock (id, plan_id, arch, sequence, status)
		VALUES ($1,$2,$3,$4,$5)`,
		s.ID, s.PlanID, s.Arch, s.Sequence, s.Status)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.New(apperr.Conflict, "aligner %s/%d already tracked for this plan", s.Arch, s.Sequence)
		}
		return apperr.Wrap(apperr.Persistence, err, "insert stock item")
	}
	return nil
}

func (r *stockRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*StockItem, error) {
	return scanStock(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+stockCols+` FROM ortho_aligner_stock WHERE id = $1`, id))
}

func (r *stockRepoPG) ListByPlan(ctx context.Context, planID uuid.UUID) ([]*StockItem, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx, `SELECT `+stockCols+`
		FROM ortho_aligner_stock WHERE plan_id = $1 ORDER BY arch ASC, sequence ASC`, planID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, err, "query stock items")
	}
	defer rows.Close()
	var out []*StockItem
	for rows.Next() {
		s, err := scanStock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *stockRepoPG) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := connFor(ctx, r.pool).Exec(ctx,
		`UPDATE ortho_aligner_stock SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, err, "update stock status")
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "stock item not found")
	}
	return nil
}
