package patient

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

const patientCols = `id, full_name, document, phone, email, birth_date,
	total_approved, total_paid, balance_due, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.FullName, &p.Document, &p.Phone, &p.Email, &p.BirthDate,
		&p.TotalApproved, &p.TotalPaid, &p.BalanceDue, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "patient not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, err, "scan patient")
	}
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient (id, full_name, document, phone, email, birth_date)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		p.ID, p.FullName, p.Document, p.Phone, p.Email, p.BirthDate)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, err, "insert patient")
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET full_name=$2, document=$3, phone=$4, email=$5, birth_date=$6, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.FullName, p.Document, p.Phone, p.Email, p.BirthDate)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, err, "update patient")
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "patient not found")
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, err, "delete patient")
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "patient not found")
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&total); err != nil {
		return nil, 0, apperr.Wrap(apperr.Persistence, err, "count patients")
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+patientCols+` FROM patient ORDER BY full_name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.Persistence, err, "list patients")
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, nil
}

func (r *repoPG) SearchByName(ctx context.Context, name string, limit, offset int) ([]*Patient, int, error) {
	pattern := "%" + name + "%"
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM patient WHERE full_name ILIKE $1`, pattern).Scan(&total); err != nil {
		return nil, 0, apperr.Wrap(apperr.Persistence, err, "count patients by name")
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+patientCols+` FROM patient WHERE full_name ILIKE $1 ORDER BY full_name LIMIT $2 OFFSET $3`,
		pattern, limit, offset)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.Persistence, err, "search patients")
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, nil
}

func (r *repoPG) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&total); err != nil {
		return 0, apperr.Wrap(apperr.Persistence, err, "count patients")
	}
	return total, nil
}

func (r *repoPG) AdjustAggregates(ctx context.Context, id uuid.UUID, deltaApproved, deltaPaid float64) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET
			total_approved = total_approved + $2,
			total_paid     = total_paid + $3,
			balance_due    = balance_due + ($2 - $3),
			updated_at     = NOW()
		WHERE id = $1`,
		id, deltaApproved, deltaPaid)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, err, "adjust patient aggregates")
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "patient not found")
	}
	return nil
}

func (r *repoPG) SetAggregates(ctx context.Context, id uuid.UUID, totalApproved, totalPaid float64) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET
			total_approved = $2,
			total_paid     = $3,
			balance_due    = $2 - $3,
			updated_at     = NOW()
		WHERE id = $1`,
		id, totalApproved, totalPaid)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, err, "set patient aggregates")
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "patient not found")
	}
	return nil
}

// =========== Clinical Notes ===========

type noteRepoPG struct{ pool *pgxpool.Pool }

func NewNoteRepoPG(pool *pgxpool.Pool) NoteRepository { return &noteRepoPG{pool: pool} }

func (r *noteRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *noteRepoPG) Append(ctx context.Context, n *ClinicalNote) error {
	n.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO clinical_note (id, patient_id, content, category, registered_by)
		VALUES ($1,$2,$3,$4,$5)`,
		n.ID, n.PatientID, n.Content, n.Category, n.RegisteredBy)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, err, "insert clinical note")
	}
	return nil
}

func (r *noteRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*ClinicalNote, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM clinical_note WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, apperr.Wrap(apperr.Persistence, err, "count clinical notes")
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, patient_id, content, category, registered_by, created_at
		FROM clinical_note WHERE patient_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.Persistence, err, "list clinical notes")
	}
	defer rows.Close()
	var items []*ClinicalNote
	for rows.Next() {
		var n ClinicalNote
		if err := rows.Scan(&n.ID, &n.PatientID, &n.Content, &n.Category, &n.RegisteredBy, &n.CreatedAt); err != nil {
			return nil, 0, apperr.Wrap(apperr.Persistence, err, "scan clinical note")
		}
		items = append(items, &n)
	}
	return items, total, nil
}
