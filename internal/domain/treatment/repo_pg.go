package treatment

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

const itemCols = `id, budget_id, budget_item_id, patient_id, procedure, region,
	status, execution_date, executed_by, created_at, updated_at`

func scanItem(row pgx.Row) (*Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.BudgetID, &it.BudgetItemID, &it.PatientID, &it.Procedure,
		&it.Region, &it.Status, &it.ExecutionDate, &it.ExecutedBy, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "treatment item not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, err, "scan treatment item")
	}
	return &it, nil
}

func (r *repoPG) CreateBatch(ctx context.Context, specs []ItemSpec) ([]*Item, error) {
	out := make([]*Item, 0, len(specs))
	for _, spec := range specs {
		row := r.conn(ctx).QueryRow(ctx, `
			INSERT INTO treatment_item (id, budget_id, budget_item_id, patient_id, procedure, region, status)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			RETURNING `+itemCols,
			uuid.New(), spec.BudgetID, spec.BudgetItemID, spec.PatientID,
			spec.Procedure, spec.Region, StatusNotStarted)
		it, err := scanItem(row)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Item, error) {
	return scanItem(r.conn(ctx).QueryRow(ctx,
		`SELECT `+itemCols+` FROM treatment_item WHERE id = $1`, id))
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, p pagination.Params) ([]*Item, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM treatment_item WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, apperr.Wrap(apperr.Persistence, err, "count treatment items")
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+itemCols+`
		FROM treatment_item WHERE patient_id = $1
		ORDER BY created_at ASC LIMIT $2 OFFSET $3`, patientID, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.Persistence, err, "query treatment items")
	}
	defer rows.Close()
	var out []*Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, it)
	}
	return out, total, rows.Err()
}

func (r *repoPG) ListByBudget(ctx context.Context, budgetID uuid.UUID) ([]*Item, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+itemCols+`
		FROM treatment_item WHERE budget_id = $1 ORDER BY created_at ASC`, budgetID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, err, "query budget treatment items")
	}
	defer rows.Close()
	var out []*Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *repoPG) SetStatus(ctx context.Context, id uuid.UUID, fromStatus, toStatus string, executedBy *uuid.UUID) (*Item, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		UPDATE treatment_item
		SET status = $3,
		    execution_date = CASE WHEN $3 = 'completed' THEN now() ELSE execution_date END,
		    executed_by = COALESCE($4, executed_by),
		    updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING `+itemCols, id, fromStatus, toStatus, executedBy)
	it, err := scanItem(row)
	if apperr.IsKind(err, apperr.NotFound) {
		// Row exists but is in another state, or does not exist at all.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, apperr.New(apperr.InvalidTransition, "treatment item is not %s", fromStatus)
	}
	return it, err
}

func (r *repoPG) DeleteByBudget(ctx context.Context, budgetID uuid.UUID) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM treatment_item WHERE budget_id = $1`, budgetID)
	if err != nil {
		return 0, apperr.Wrap(apperr.Persistence, err, "delete budget treatment items")
	}
	return int(tag.RowsAffected()), nil
}
