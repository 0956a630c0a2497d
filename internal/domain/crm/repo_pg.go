package crm

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odontocore/clinic/internal/platform/apperr"
	"github.com/odontocore/clinic/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const oppCols = `id, patient_id, budget_id, status, value, notes, created_by, created_at, closed_at`

func scanOpportunity(row pgx.Row) (*Opportunity, error) {
	var o Opportunity
	err := row.Scan(&o.ID, &o.PatientID, &o.BudgetID, &o.Status, &o.Value, &o.Notes,
		&o.CreatedBy, &o.CreatedAt, &o.ClosedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "opportunity not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, err, "scan opportunity")
	}
	return &o, nil
}

func (r *repoPG) Create(ctx context.Context, o *Opportunity) error {
	o.ID = uuid.New()
	if o.Status == "" {
		o.Status = StatusOpen
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO opportunity (id, patient_id, budget_id, status, value, notes, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		o.ID, o.PatientID, o.BudgetID, o.Status, o.Value, o.Notes, o.CreatedBy)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, err, "insert opportunity")
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Opportunity, error) {
	return scanOpportunity(r.conn(ctx).QueryRow(ctx,
		`SELECT `+oppCols+` FROM opportunity WHERE id = $1`, id))
}

func (r *repoPG) GetOpenByBudget(ctx context.Context, budgetID uuid.UUID) (*Opportunity, error) {
	return scanOpportunity(r.conn(ctx).QueryRow(ctx,
		`SELECT `+oppCols+` FROM opportunity WHERE budget_id = $1 AND status = $2`, budgetID, StatusOpen))
}

func (r *repoPG) Close(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE opportunity SET status = $2, closed_at = NOW() WHERE id = $1 AND status = $3`,
		id, status, StatusOpen)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, err, "close opportunity")
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "open opportunity not found")
	}
	return nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Opportunity, int, error) {
	return r.list(ctx, `patient_id = $1`, patientID, limit, offset)
}

func (r *repoPG) ListByStatus(ctx context.Context, status string, limit, offset int) ([]*Opportunity, int, error) {
	return r.list(ctx, `status = $1`, status, limit, offset)
}

func (r *repoPG) list(ctx context.Context, where string, arg interface{}, limit, offset int) ([]*Opportunity, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM opportunity WHERE `+where, arg).Scan(&total); err != nil {
		return nil, 0, apperr.Wrap(apperr.Persistence, err, "count opportunities")
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+oppCols+` FROM opportunity WHERE `+where+` ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		arg, limit, offset)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.Persistence, err, "list opportunities")
	}
	defer rows.Close()
	var items []*Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, o)
	}
	return items, total, nil
}

func (r *repoPG) SumOpenValue(ctx context.Context) (float64, error) {
	var sum float64
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COALESCE(SUM(value), 0) FROM opportunity WHERE status = $1`, StatusOpen).Scan(&sum)
	if err != nil {
		return 0, apperr.Wrap(apperr.Persistence, err, "sum open opportunities")
	}
	return sum, nil
}
