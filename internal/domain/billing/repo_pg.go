package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

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

type installmentRepoPG struct{ pool *pgxpool.Pool }

func NewInstallmentRepoPG(pool *pgxpool.Pool) InstallmentRepository {
	return &installmentRepoPG{pool: pool}
}

func (r *installmentRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const installmentCols = `id, patient_id, source_budget_id, source_contract_id, description,
	due_date, amount, amount_paid, status, method, created_at, updated_at`

func scanInstallment(row pgx.Row) (*Installment, error) {
	var i Installment
	err := row.Scan(&i.ID, &i.PatientID, &i.SourceBudgetID, &i.SourceContractID, &i.Description,
		&i.DueDate, &i.Amount, &i.AmountPaid, &i.Status, &i.Method, &i.CreatedAt, &i.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "installment not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, err, "scan installment")
	}
	return &i, nil
}

func (r *installmentRepoPG) Create(ctx context.Context, spec InstallmentSpec) (*Installment, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO installment (id, patient_id, source_budget_id, source_contract_id, description, due_date, amount, amount_paid, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,0,$8)
		RETURNING `+installmentCols,
		uuid.New(), spec.PatientID, spec.SourceBudgetID, spec.SourceContractID,
		spec.Description, spec.DueDate, spec.Amount, InstallmentPending)
	return scanInstallment(row)
}

func (r *installmentRepoPG) CreateBatch(ctx context.Context, specs []InstallmentSpec) ([]*Installment, error) {
	out := make([]*Installment, 0, len(specs))
	for _, spec := range specs {
		inst, err := r.Create(ctx, spec)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

func (r *installmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Installment, error) {
	return scanInstallment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+installmentCols+` FROM installment WHERE id = $1`, id))
}

func (r *installmentRepoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Installment, error) {
	return scanInstallment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+installmentCols+` FROM installment WHERE id = $1 FOR UPDATE`, id))
}

func (r *installmentRepoPG) list(ctx context.Context, query string, args ...interface{}) ([]*Installment, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, err, "query installments")
	}
	defer rows.Close()
	var out []*Installment
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (r *installmentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, p pagination.Params) ([]*Installment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM installment WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, apperr.Wrap(apperr.Persistence, err, "count installments")
	}
	items, err := r.list(ctx, `SELECT `+installmentCols+`
		FROM installment WHERE patient_id = $1
		ORDER BY due_date ASC LIMIT $2 OFFSET $3`, patientID, p.Limit, p.Offset)
	return items, total, err
}

func (r *installmentRepoPG) ListBySourceBudget(ctx context.Context, budgetID uuid.UUID) ([]*Installment, error) {
	return r.list(ctx, `SELECT `+installmentCols+`
		FROM installment WHERE source_budget_id = $1 ORDER BY due_date ASC`, budgetID)
}

func (r *installmentRepoPG) ListBySourceContract(ctx context.Context, contractID uuid.UUID) ([]*Installment, error) {
	return r.list(ctx, `SELECT `+installmentCols+`
		FROM installment WHERE source_contract_id = $1 ORDER BY due_date ASC`, contractID)
}

func (r *installmentRepoPG) CountBySourceContract(ctx context.Context, contractID uuid.UUID) (int, error) {
	var n int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM installment WHERE source_contract_id = $1`, contractID).Scan(&n); err != nil {
		return 0, apperr.Wrap(apperr.Persistence, err, "count contract installments")
	}
	return n, nil
}

func (r *installmentRepoPG) DeleteBySourceBudget(ctx context.Context, budgetID uuid.UUID) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM installment WHERE source_budget_id = $1`, budgetID)
	if err != nil {
		return 0, apperr.Wrap(apperr.Persistence, err, "delete budget installments")
	}
	return int(tag.RowsAffected()), nil
}

func (r *installmentRepoPG) ApplyPayment(ctx context.Context, id uuid.UUID, amount float64, method string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE installment
		SET amount_paid = amount_paid + $2,
		    method = $3,
		    status = CASE
		        WHEN amount_paid + $2 >= amount - 0.005 THEN 'paid'
		        ELSE 'partial'
		    END,
		    updated_at = now()
		WHERE id = $1`, id, amount, method)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, err, "apply payment")
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "installment not found")
	}
	return nil
}

func (r *installmentRepoPG) AddPaymentRecord(ctx context.Context, rec *PaymentRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO installment_payment (id, installment_id, amount, method, paid_at, notes, received_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		rec.ID, rec.InstallmentID, rec.Amount, rec.Method, rec.PaidAt, rec.Notes, rec.ReceivedBy)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, err, "insert payment record")
	}
	return nil
}

func (r *installmentRepoPG) ListPayments(ctx context.Context, installmentID uuid.UUID) ([]*PaymentRecord, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, installment_id, amount, method, paid_at, notes, received_by, created_at
		FROM installment_payment WHERE installment_id = $1 ORDER BY paid_at ASC`, installmentID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, err, "query payment records")
	}
	defer rows.Close()
	var out []*PaymentRecord
	for rows.Next() {
		var rec PaymentRecord
		if err := rows.Scan(&rec.ID, &rec.InstallmentID, &rec.Amount, &rec.Method,
			&rec.PaidAt, &rec.Notes, &rec.ReceivedBy, &rec.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.Persistence, err, "scan payment record")
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (r *installmentRepoPG) SumPaidByPatient(ctx context.Context, patientID uuid.UUID) (float64, error) {
	var sum float64
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_paid), 0) FROM installment
		WHERE patient_id = $1 AND status <> 'cancelled'`, patientID).Scan(&sum)
	if err != nil {
		return 0, apperr.Wrap(apperr.Persistence, err, "sum paid by patient")
	}
	return sum, nil
}

func (r *installmentRepoPG) SumPaymentsBetween(ctx context.Context, from, to time.Time) (float64, error) {
	var sum float64
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM installment_payment
		WHERE paid_at >= $1 AND paid_at < $2`, from, to).Scan(&sum)
	if err != nil {
		return 0, apperr.Wrap(apperr.Persistence, err, "sum payments between dates")
	}
	return sum, nil
}

// The overdue position sums the full face amount of every late installment,
// not just the unpaid remainder. A partial payment does not shrink the figure
// the financial lock and the aging report are built on.
const overdueQuery = `
	SELECT COALESCE(SUM(amount), 0), COUNT(*), MIN(due_date)
	FROM installment
	WHERE status IN ('pending','partial','overdue') AND due_date < $1`

func (r *installmentRepoPG) overdue(ctx context.Context, query string, args ...interface{}) (OverdueSummary, error) {
	var s OverdueSummary
	if err := r.conn(ctx).QueryRow(ctx, query, args...).Scan(&s.Total, &s.Count, &s.Oldest); err != nil {
		return OverdueSummary{}, apperr.Wrap(apperr.Persistence, err, "query overdue summary")
	}
	return s, nil
}

func (r *installmentRepoPG) OverdueByPatient(ctx context.Context, patientID uuid.UUID, asOf time.Time) (OverdueSummary, error) {
	return r.overdue(ctx, overdueQuery+` AND patient_id = $2`, asOf, patientID)
}

func (r *installmentRepoPG) OverdueBySourceContract(ctx context.Context, contractID uuid.UUID, asOf time.Time) (OverdueSummary, error) {
	return r.overdue(ctx, overdueQuery+` AND source_contract_id = $2`, asOf, contractID)
}

func (r *installmentRepoPG) OverdueTotal(ctx context.Context, asOf time.Time) (OverdueSummary, error) {
	return r.overdue(ctx, overdueQuery, asOf)
}

type expenseRepoPG struct{ pool *pgxpool.Pool }

func NewExpenseRepoPG(pool *pgxpool.Pool) ExpenseRepository {
	return &expenseRepoPG{pool: pool}
}

func (r *expenseRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const expenseCols = `id, description, category, due_date, amount, amount_paid, status, method, created_at, updated_at`

func scanExpense(row pgx.Row) (*Expense, error) {
	var e Expense
	err := row.Scan(&e.ID, &e.Description, &e.Category, &e.DueDate, &e.Amount,
		&e.AmountPaid, &e.Status, &e.Method, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "expense not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, err, "scan expense")
	}
	return &e, nil
}

func (r *expenseRepoPG) Create(ctx context.Context, e *Expense) (*Expense, error) {
	return scanExpense(r.conn(ctx).QueryRow(ctx, `
		INSERT INTO expense (id, description, category, due_date, amount, amount_paid, status)
		VALUES ($1,$2,$3,$4,$5,0,$6)
		RETURNING `+expenseCols,
		uuid.New(), e.Description, e.Category, e.DueDate, e.Amount, InstallmentPending))
}

func (r *expenseRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Expense, error) {
	return scanExpense(r.conn(ctx).QueryRow(ctx,
		`SELECT `+expenseCols+` FROM expense WHERE id = $1`, id))
}

func (r *expenseRepoPG) List(ctx context.Context, status string, p pagination.Params) ([]*Expense, int, error) {
	where := ""
	args := []interface{}{}
	if status != "" {
		where = ` WHERE status = $1`
		args = append(args, status)
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM expense`+where, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Wrap(apperr.Persistence, err, "count expenses")
	}
	query := fmt.Sprintf(`SELECT %s FROM expense%s ORDER BY due_date ASC LIMIT $%d OFFSET $%d`,
		expenseCols, where, len(args)+1, len(args)+2)
	args = append(args, p.Limit, p.Offset)
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.Persistence, err, "query expenses")
	}
	defer rows.Close()
	var out []*Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

func (r *expenseRepoPG) ApplyPayment(ctx context.Context, id uuid.UUID, amount float64, method string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE expense
		SET amount_paid = amount_paid + $2,
		    method = $3,
		    status = CASE
		        WHEN amount_paid + $2 >= amount - 0.005 THEN 'paid'
		        ELSE 'partial'
		    END,
		    updated_at = now()
		WHERE id = $1`, id, amount, method)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, err, "pay expense")
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "expense not found")
	}
	return nil
}

type registerRepoPG struct{ pool *pgxpool.Pool }

func NewRegisterRepoPG(pool *pgxpool.Pool) RegisterRepository {
	return &registerRepoPG{pool: pool}
}

func (r *registerRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const sessionCols = `id, status, initial_balance, running_balance, closing_balance, responsible, observations, opened_at, closed_at`

func scanSession(row pgx.Row) (*RegisterSession, error) {
	var s RegisterSession
	err := row.Scan(&s.ID, &s.Status, &s.InitialBalance, &s.RunningBalance, &s.ClosingBalance,
		&s.Responsible, &s.Observations, &s.OpenedAt, &s.ClosedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "register session not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, err, "scan register session")
	}
	return &s, nil
}

func (r *registerRepoPG) Open(ctx context.Context, s *RegisterSession) (*RegisterSession, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO register_session (id, status, initial_balance, running_balance, responsible, observations)
		VALUES ($1,$2,$3,$3,$4,$5)
		RETURNING `+sessionCols,
		uuid.New(), RegisterOpen, s.InitialBalance, s.Responsible, s.Observations)
	sess, err := scanSession(row)
	if err != nil {
		// A partial unique index on status='open' enforces the singleton.
		var appErr *apperr.Error
		if errors.As(err, &appErr) && isUniqueViolation(appErr.Err) {
			return nil, apperr.New(apperr.Conflict, "a register session is already open")
		}
		return nil, err
	}
	return sess, nil
}

func (r *registerRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*RegisterSession, error) {
	return scanSession(r.conn(ctx).QueryRow(ctx,
		`SELECT `+sessionCols+` FROM register_session WHERE id = $1`, id))
}

func (r *registerRepoPG) GetOpen(ctx context.Context) (*RegisterSession, error) {
	return scanSession(r.conn(ctx).QueryRow(ctx,
		`SELECT `+sessionCols+` FROM register_session WHERE status = $1`, RegisterOpen))
}

func (r *registerRepoPG) Close(ctx context.Context, id uuid.UUID, closingBalance float64, observations *string) (*RegisterSession, error) {
	return scanSession(r.conn(ctx).QueryRow(ctx, `
		UPDATE register_session
		SET status = $2, closing_balance = $3,
		    observations = COALESCE($4, observations),
		    closed_at = now()
		WHERE id = $1 AND status = $5
		RETURNING `+sessionCols,
		id, RegisterClosed, closingBalance, observations, RegisterOpen))
}

func (r *registerRepoPG) AddEntry(ctx context.Context, e *RegisterEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO register_entry (id, session_id, type, amount, description, reference_id)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		e.ID, e.SessionID, e.Type, e.Amount, e.Description, e.ReferenceID)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, err, "insert register entry")
	}
	delta := e.Amount
	if e.Type == EntryExpense {
		delta = -delta
	}
	_, err = r.conn(ctx).Exec(ctx, `
		UPDATE register_session SET running_balance = running_balance + $2 WHERE id = $1`,
		e.SessionID, delta)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, err, "update register balance")
	}
	return nil
}

func (r *registerRepoPG) ListEntries(ctx context.Context, sessionID uuid.UUID) ([]*RegisterEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, session_id, type, amount, description, reference_id, created_at
		FROM register_entry WHERE session_id = $1 ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, err, "query register entries")
	}
	defer rows.Close()
	var out []*RegisterEntry
	for rows.Next() {
		var e RegisterEntry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Type, &e.Amount, &e.Description, &e.ReferenceID, &e.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.Persistence, err, "scan register entry")
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (r *registerRepoPG) ListSessions(ctx context.Context, p pagination.Params) ([]*RegisterSession, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM register_session`).Scan(&total); err != nil {
		return nil, 0, apperr.Wrap(apperr.Persistence, err, "count register sessions")
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+sessionCols+`
		FROM register_session ORDER BY opened_at DESC LIMIT $1 OFFSET $2`, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.Persistence, err, "query register sessions")
	}
	defer rows.Close()
	var out []*RegisterSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}
