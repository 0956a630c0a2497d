package budget

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

const budgetCols = `id, patient_id, status, total, discount, final_value, installments,
	registered_by, created_at, updated_at`

func scanBudget(row pgx.Row) (*Budget, error) {
	var b Budget
	err := row.Scan(&b.ID, &b.PatientID, &b.Status, &b.Total, &b.Discount, &b.FinalValue,
		&b.Installments, &b.RegisteredBy, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "budget not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, err, "scan budget")
	}
	return &b, nil
}

func (r *repoPG) Create(ctx context.Context, b *Budget) error {
	b.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO budget (id, patient_id, status, total, discount, final_value, installments, registered_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		b.ID, b.PatientID, b.Status, b.Total, b.Discount, b.FinalValue, b.Installments, b.RegisteredBy)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, err, "insert budget")
	}
	return r.insertItems(ctx, b)
}

func (r *repoPG) insertItems(ctx context.Context, b *Budget) error {
	for _, it := range b.Items {
		it.ID = uuid.New()
		it.BudgetID = b.ID
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO budget_item (id, budget_id, procedure, region, quantity, unit_value, line_total)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			it.ID, it.BudgetID, it.Procedure, it.Region, it.Quantity, it.UnitValue, it.LineTotal)
		if err != nil {
			return apperr.Wrap(apperr.Persistence, err, "insert budget item")
		}
	}
	return nil
}

func (r *repoPG) loadItems(ctx context.Context, budgetID uuid.UUID) ([]*Item, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, budget_id, procedure, region, quantity, unit_value, line_total
		FROM budget_item WHERE budget_id = $1 ORDER BY procedure ASC`, budgetID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, err, "query budget items")
	}
	defer rows.Close()
	var out []*Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.BudgetID, &it.Procedure, &it.Region,
			&it.Quantity, &it.UnitValue, &it.LineTotal); err != nil {
			return nil, apperr.Wrap(apperr.Persistence, err, "scan budget item")
		}
		out = append(out, &it)
	}
	return out, rows.Err()
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Budget, error) {
	b, err := scanBudget(r.conn(ctx).QueryRow(ctx,
		`SELECT `+budgetCols+` FROM budget WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	b.Items, err = r.loadItems(ctx, id)
	return b, err
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, p pagination.Params) ([]*Budget, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM budget WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, apperr.Wrap(apperr.Persistence, err, "count budgets")
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+budgetCols+`
		FROM budget WHERE patient_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.Persistence, err, "query budgets")
	}
	defer rows.Close()
	var out []*Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Wrap(apperr.Persistence, err, "iterate budgets")
	}
	for _, b := range out {
		if b.Items, err = r.loadItems(ctx, b.ID); err != nil {
			return nil, 0, err
		}
	}
	return out, total, nil
}

func (r *repoPG) Update(ctx context.Context, b *Budget) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE budget
		SET total = $2, discount = $3, final_value = $4, installments = $5, updated_at = now()
		WHERE id = $1`,
		b.ID, b.Total, b.Discount, b.FinalValue, b.Installments)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, err, "update budget")
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "budget not found")
	}
	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM budget_item WHERE budget_id = $1`, b.ID); err != nil {
		return apperr.Wrap(apperr.Persistence, err, "replace budget items")
	}
	return r.insertItems(ctx, b)
}

func (r *repoPG) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE budget SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, err, "set budget status")
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "budget not found")
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM budget_item WHERE budget_id = $1`, id); err != nil {
		return apperr.Wrap(apperr.Persistence, err, "delete budget items")
	}
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM budget WHERE id = $1`, id)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, err, "delete budget")
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "budget not found")
	}
	return nil
}

func (r *repoPG) SumApprovedByPatient(ctx context.Context, patientID uuid.UUID) (float64, error) {
	var sum float64
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(final_value), 0) FROM budget
		WHERE patient_id = $1 AND status = $2`, patientID, StatusApproved).Scan(&sum)
	if err != nil {
		return 0, apperr.Wrap(apperr.Persistence, err, "sum approved budgets")
	}
	return sum, nil
}
